package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicpulse/civicpulse-api/internal/models"
)

// AgentRepository provides database access for municipal agent accounts.
type AgentRepository struct {
	db *sqlx.DB
}

// NewAgentRepository creates a new instance of AgentRepository.
func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// FindByEmail returns an agent by email address.
func (r *AgentRepository) FindByEmail(ctx context.Context, email string) (*models.Agent, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, created_at, updated_at FROM agents WHERE email = $1 LIMIT 1`
	var agent models.Agent
	if err := r.db.GetContext(ctx, &agent, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find agent by email: %w", err)
	}
	return &agent, nil
}

// FindByID returns an agent by identifier.
func (r *AgentRepository) FindByID(ctx context.Context, id string) (*models.Agent, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, created_at, updated_at FROM agents WHERE id = $1 LIMIT 1`
	var agent models.Agent
	if err := r.db.GetContext(ctx, &agent, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find agent by id: %w", err)
	}
	return &agent, nil
}

// Create inserts a new agent account.
func (r *AgentRepository) Create(ctx context.Context, agent *models.Agent) error {
	const query = `INSERT INTO agents (id, email, password_hash, full_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx, query,
		agent.ID, agent.Email, agent.PasswordHash, agent.FullName, agent.Role, agent.Active, agent.CreatedAt, agent.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}
