package store

import (
	"context"
	"database/sql"

	"call-scoring-go/internal/apperr"
)

// CredentialRepository stores per-company secrets (LLM API keys)
// already sealed by the secrets package. Plaintext never touches this
// layer.
type CredentialRepository struct {
	db DBTX
}

func NewCredentialRepository(db DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// LLMAPIKeyName is the credential slot the scoring engine reads.
const LLMAPIKeyName = "llm_api_key"

// Set upserts one sealed credential.
func (r *CredentialRepository) Set(ctx context.Context, companyID, name, ciphertext string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO company_credentials (company_id, name, ciphertext, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (company_id, name) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			updated_at = NOW()`,
		companyID, name, ciphertext)
	return apperr.Wrap(err, "set credential")
}

// Get returns the sealed credential.
func (r *CredentialRepository) Get(ctx context.Context, companyID, name string) (string, error) {
	var ciphertext string
	err := r.db.GetContext(ctx, &ciphertext,
		`SELECT ciphertext FROM company_credentials WHERE company_id = $1 AND name = $2`,
		companyID, name)
	if err == sql.ErrNoRows {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", apperr.Wrap(err, "get credential")
	}
	return ciphertext, nil
}
