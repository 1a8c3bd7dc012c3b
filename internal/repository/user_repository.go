package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/bajuddin15/whatsapp-session-manager/internal/models"
	"github.com/bajuddin15/whatsapp-session-manager/pkg/logger"
)

var ErrUserNotFound = errors.New("usuário não encontrado")

type UserRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewUserRepository(db *sql.DB, log *logger.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: log,
	}
}

func (r *UserRepository) Migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT,
			phone      TEXT NOT NULL,
			dev_token  TEXT NOT NULL UNIQUE,
			wid_server TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("falha ao migrar tabela users: %w", err)
	}

	return nil
}

func (r *UserRepository) Create(user *models.User) error {
	exists, err := r.ExistsByToken(user.DevToken)
	if err != nil {
		return fmt.Errorf("falha ao verificar usuário existente: %w", err)
	}
	if exists {
		return fmt.Errorf("já existe um usuário com o token: %s", user.DevToken)
	}

	query := `
		INSERT INTO users (id, name, phone, dev_token, wid_server, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Exec(query,
		user.ID,
		user.Name,
		user.Phone,
		user.DevToken,
		user.WidServer,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("falha ao criar usuário: %w", err)
	}

	r.logger.Infof("Usuário criado: %s (%s)", user.DevToken, user.ID)
	return nil
}

func (r *UserRepository) FindByToken(token string) (*models.User, error) {
	query := `
		SELECT id, name, phone, dev_token, wid_server, created_at, updated_at
		FROM users
		WHERE dev_token = $1
	`

	user := &models.User{}
	err := r.db.QueryRow(query, token).Scan(
		&user.ID,
		&user.Name,
		&user.Phone,
		&user.DevToken,
		&user.WidServer,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar usuário: %w", err)
	}

	return user, nil
}

func (r *UserRepository) ExistsByToken(token string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE dev_token = $1)`

	var exists bool
	if err := r.db.QueryRow(query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("falha ao verificar usuário existente: %w", err)
	}

	return exists, nil
}

func (r *UserRepository) DeleteByToken(token string) error {
	query := `DELETE FROM users WHERE dev_token = $1`

	if _, err := r.db.Exec(query, token); err != nil {
		return fmt.Errorf("falha ao deletar usuário: %w", err)
	}

	r.logger.Infof("Usuário removido: %s", token)
	return nil
}
