// Package auth keeps kiosk user accounts and their login sessions.
package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/processdojo/kiosk/internal/db"
	"github.com/processdojo/kiosk/internal/rbac"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUser        = errors.New("invalid user")
)

var bcryptCost = 12

// Login methods recorded on sessions.
const (
	MethodPassword  = "password"
	MethodBiometric = "biometric"
)

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	FullName    string    `json:"full_name"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	Plant       string    `json:"plant,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Department  string    `json:"department,omitempty"`
	BiometricID string    `json:"biometric_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserInput is one row of an admin user upsert. Password is required for new
// users and optional for existing ones.
type UserInput struct {
	User
	Password string `json:"password,omitempty"`
}

type Users struct {
	db  *sql.DB
	now func() time.Time
}

func NewUsers(dbh *sql.DB) *Users {
	return &Users{db: dbh, now: time.Now}
}

const userCols = `id,username,role,full_name,COALESCE(employee_id,''),plant,unit,department,COALESCE(biometric_id,''),created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u       User
		created int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.EmployeeID, &u.Plant, &u.Unit,
		&u.Department, &u.BiometricID, &created)
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, err
}

func (s *Users) Get(ctx context.Context, id string) (User, error) {
	return GetUser(ctx, s.db, id)
}

// GetUser is the querier-level form of Users.Get.
func GetUser(ctx context.Context, q db.Querier, id string) (User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, errors.Wrapf(ErrNotFound, "user %s", id)
	}
	return u, errors.Wrap(err, "get user")
}

func (s *Users) List(ctx context.Context, role string) ([]User, error) {
	query := `SELECT ` + userCols + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=$1`
		args = append(args, role)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY username`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Authenticate checks username and password and returns the user.
func (s *Users) Authenticate(ctx context.Context, username, password string) (User, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx, `SELECT id,password_hash FROM users WHERE username=$1`,
		strings.TrimSpace(username)).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, errors.Wrap(err, "authenticate")
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return s.Get(ctx, id)
}

// Upsert creates or updates users by ID or username in one transaction.
func (s *Users) Upsert(ctx context.Context, rows []UserInput) (inserted, updated int, err error) {
	now := s.now().Unix()
	err = db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range rows {
			r.Username = strings.TrimSpace(r.Username)
			if r.Username == "" {
				return errors.Wrap(ErrInvalidUser, "username required")
			}
			if r.Role == "" {
				r.Role = rbac.RoleEmployee
			}
			if r.Role != rbac.RoleEmployee && r.Role != rbac.RoleAdmin {
				return errors.Wrapf(ErrInvalidUser, "invalid role %q", r.Role)
			}
			var phash string
			if r.Password != "" {
				b, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcryptCost)
				if err != nil {
					return errors.Wrap(err, "hash password")
				}
				phash = string(b)
			}

			var existing string
			err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id=$1 OR username=$2`, r.ID, r.Username).Scan(&existing)
			switch {
			case err == nil:
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2, full_name=$3,
						employee_id=$4, plant=$5, unit=$6, department=$7,
						password_hash=CASE WHEN $8 = '' THEN password_hash ELSE $8 END
					WHERE id=$9`,
					r.Username, r.Role, r.FullName, nullable(r.EmployeeID), r.Plant, r.Unit, r.Department, phash, existing)
				if err != nil {
					return errors.Wrapf(err, "update user %s", r.Username)
				}
				updated++
			case errors.Is(err, sql.ErrNoRows):
				if phash == "" {
					return errors.Wrapf(ErrInvalidUser, "password required for new user %s", r.Username)
				}
				if r.ID == "" {
					r.ID = uuid.NewString()
				}
				_, err = tx.ExecContext(ctx, `INSERT INTO users
					(id,username,password_hash,role,full_name,employee_id,plant,unit,department,created_at)
					VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
					r.ID, r.Username, phash, r.Role, r.FullName, nullable(r.EmployeeID), r.Plant, r.Unit, r.Department, now)
				if err != nil {
					return errors.Wrapf(err, "insert user %s", r.Username)
				}
				inserted++
			default:
				return errors.Wrap(err, "lookup user")
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// EnsureAdmin creates the bootstrap admin account with a pre-hashed password
// if no user of that name exists yet.
func (s *Users) EnsureAdmin(ctx context.Context, username, passHash string) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (id,username,password_hash,role,full_name,created_at)
		VALUES ($1,$2,$3,$4,'Administrator',$5)
		ON CONFLICT (username) DO NOTHING`,
		uuid.NewString(), username, passHash, rbac.RoleAdmin, s.now().Unix())
	if err != nil {
		return errors.Wrap(err, "ensure admin")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		glog.Infof("auth: created admin user %q", username)
	}
	return nil
}

// SetBiometricID links (or with "" unlinks) a fingerprint template to a user.
func SetBiometricID(ctx context.Context, q db.Querier, userID, biometricID string) error {
	res, err := q.ExecContext(ctx, `UPDATE users SET biometric_id=$1 WHERE id=$2`, nullable(biometricID), userID)
	if err != nil {
		return errors.Wrap(err, "set biometric id")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "user %s", userID)
	}
	return nil
}

// nullable maps "" to NULL so optional unique columns can repeat empties.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var ErrLastAdmin = errors.New("cannot demote the last admin")

// SetRole changes a user's role, found by ID or username. The last admin
// cannot be demoted.
func (s *Users) SetRole(ctx context.Context, target, role string) (User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != rbac.RoleEmployee && role != rbac.RoleAdmin {
		return User{}, errors.Wrapf(ErrInvalidUser, "invalid role %q", role)
	}
	var id string
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT id, role FROM users WHERE id=$1 OR username=$1`, target).Scan(&id, &cur)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrNotFound, "user %s", target)
		}
		if err != nil {
			return errors.Wrap(err, "lookup user")
		}
		if cur == rbac.RoleAdmin && role != rbac.RoleAdmin {
			var admins int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role=$1`, rbac.RoleAdmin).Scan(&admins); err != nil {
				return errors.Wrap(err, "count admins")
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, role, id)
		return errors.Wrap(err, "update role")
	})
	if err != nil {
		return User{}, err
	}
	return s.Get(ctx, id)
}

// ChangePassword replaces userID's password after checking the old one.
func (s *Users) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return errors.Wrap(ErrInvalidUser, "new password required")
	}
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, userID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "user %s", userID)
	}
	if err != nil {
		return errors.Wrap(err, "load password")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	b, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(b), userID)
	return errors.Wrap(err, "update password")
}
