package biometric

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"io"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/auth"
	"github.com/processdojo/kiosk/internal/db"
	"github.com/processdojo/kiosk/internal/storage"
	syncx "github.com/processdojo/kiosk/internal/sync"
)

const templatePrefix = "biometric/"

func templateKey(biometricID string) string {
	return templatePrefix + biometricID + ".template"
}

type Service struct {
	db      *sql.DB
	blobs   storage.BlobStore
	matcher Matcher
	events  *syncx.EventRepo
}

func NewService(dbh *sql.DB, blobs storage.BlobStore, m Matcher, events *syncx.EventRepo) *Service {
	return &Service{db: dbh, blobs: blobs, matcher: m, events: events}
}

func (s *Service) DeviceStatus(ctx context.Context) (DeviceStatus, error) {
	st, err := s.matcher.Status(ctx)
	if err != nil {
		return DeviceStatus{Connected: false, Error: err.Error()}, err
	}
	return st, nil
}

func decodeTemplate(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil || len(raw) == 0 {
		return nil, errors.Wrap(ErrInvalidTemplate, "template must be non-empty base64")
	}
	return raw, nil
}

// Enroll stores templateB64 as userID's fingerprint, replacing any earlier
// enrolment, and returns the biometric ID.
func (s *Service) Enroll(ctx context.Context, userID, templateB64 string) (string, error) {
	raw, err := decodeTemplate(templateB64)
	if err != nil {
		return "", err
	}
	if _, err := auth.GetUser(ctx, s.db, userID); err != nil {
		return "", err
	}
	bioID := "BIO_" + userID
	if _, err := s.blobs.Put(templateKey(bioID), bytes.NewReader(raw)); err != nil {
		return "", errors.Wrap(err, "store template")
	}
	err = db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := auth.SetBiometricID(ctx, tx, userID, bioID); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, syncx.TypeBiometricEnrolled, userID, map[string]string{"biometric_id": bioID})
	})
	if err != nil {
		return "", err
	}
	glog.Infof("biometric: enrolled user %s", userID)
	return bioID, nil
}

// Delete removes userID's template and unlinks it.
func (s *Service) Delete(ctx context.Context, userID string) error {
	u, err := auth.GetUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if u.BiometricID == "" {
		return errors.Wrapf(ErrNotEnrolled, "user %s", userID)
	}
	if err := s.blobs.Delete(templateKey(u.BiometricID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return errors.Wrap(err, "delete template")
	}
	return auth.SetBiometricID(ctx, s.db, userID, "")
}

type enrolled struct {
	userID, biometricID string
}

func (s *Service) enrolledUsers(ctx context.Context) ([]enrolled, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, biometric_id FROM users
		WHERE biometric_id IS NOT NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list enrolled users")
	}
	defer rows.Close()
	var out []enrolled
	for rows.Next() {
		var e enrolled
		if err := rows.Scan(&e.userID, &e.biometricID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Service) storedTemplate(biometricID string) (string, error) {
	rc, err := s.blobs.Get(templateKey(biometricID))
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", errors.Wrap(err, "read template")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Identify matches templateB64 against every enrolled user and returns the
// first match. Users whose template file is missing are skipped.
func (s *Service) Identify(ctx context.Context, templateB64 string) (auth.User, error) {
	if _, err := decodeTemplate(templateB64); err != nil {
		return auth.User{}, err
	}
	users, err := s.enrolledUsers(ctx)
	if err != nil {
		return auth.User{}, err
	}
	for _, e := range users {
		stored, err := s.storedTemplate(e.biometricID)
		if errors.Is(err, storage.ErrNotFound) {
			glog.Warningf("biometric: template for %s missing", e.userID)
			continue
		}
		if err != nil {
			return auth.User{}, err
		}
		ok, err := s.matcher.Match(ctx, templateB64, stored)
		if err != nil {
			return auth.User{}, err
		}
		if ok {
			return auth.GetUser(ctx, s.db, e.userID)
		}
	}
	return auth.User{}, ErrNoMatch
}

// Verify matches templateB64 against one user's enrolment.
func (s *Service) Verify(ctx context.Context, userID, templateB64 string) (bool, error) {
	if _, err := decodeTemplate(templateB64); err != nil {
		return false, err
	}
	u, err := auth.GetUser(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	if u.BiometricID == "" {
		return false, errors.Wrapf(ErrNotEnrolled, "user %s", userID)
	}
	stored, err := s.storedTemplate(u.BiometricID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, errors.Wrapf(ErrNotEnrolled, "user %s template missing", userID)
	}
	if err != nil {
		return false, err
	}
	return s.matcher.Match(ctx, templateB64, stored)
}
