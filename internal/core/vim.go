package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/platform"
	"github.com/edvin/apmec/internal/secrets"
)

// VIM reachability statuses.
const (
	VIMStatusReachable   = "REACHABLE"
	VIMStatusUnreachable = "UNREACHABLE"
)

// VIMService manages registered infrastructure backends. Credentials are
// sealed before they touch the database and only GetVIM hands them back out,
// decrypted, to lifecycle code.
type VIMService struct {
	db     DB
	vault  *secrets.Vault
	events *EventService
}

func NewVIMService(db DB, vault *secrets.Vault, events *EventService) *VIMService {
	return &VIMService{db: db, vault: vault, events: events}
}

// Register stores a new VIM with sealed credentials.
func (s *VIMService) Register(ctx context.Context, vim *model.VIM, auth model.VIMAuth) error {
	if vim.Name == "" {
		return &ValidationError{Msg: "vim name is required"}
	}
	if auth.AuthURL == "" {
		return &ValidationError{Msg: "vim auth_url is required"}
	}

	sealed, err := s.vault.SealAuth(auth)
	if err != nil {
		return fmt.Errorf("register vim: %w", err)
	}

	if vim.ID == "" {
		vim.ID = platform.NewID()
	}
	vim.Auth = sealed
	vim.Status = VIMStatusReachable
	now := time.Now().UTC()
	vim.CreatedAt = now
	vim.UpdatedAt = now

	placement, err := json.Marshal(vim.PlacementAttr)
	if err != nil {
		return fmt.Errorf("register vim: encode placement_attr: %w", err)
	}

	if vim.IsDefault {
		if err := s.clearDefault(ctx); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO vims (id, tenant_id, name, description, type, auth, placement_attr, is_default, status, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		vim.ID, vim.TenantID, vim.Name, vim.Description, vim.Type, vim.Auth,
		placement, vim.IsDefault, vim.Status, vim.CreatedAt, vim.UpdatedAt, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("insert vim: %w", err)
	}

	s.recordEvent(ctx, vim.ID, vim.Status, model.EventCreate, "VIM registered")
	return nil
}

// GetByID returns a VIM without decrypting its credentials.
func (s *VIMService) GetByID(ctx context.Context, id string) (*model.VIM, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, type, auth, placement_attr, is_default, status, created_at, updated_at
		 FROM vims WHERE id = $1 AND deleted_at = $2`, id, model.NotDeleted)
	return s.scanVIM(row, id)
}

// GetDefault returns the VIM marked as default.
func (s *VIMService) GetDefault(ctx context.Context) (*model.VIM, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, type, auth, placement_attr, is_default, status, created_at, updated_at
		 FROM vims WHERE is_default AND deleted_at = $1`, model.NotDeleted)
	return s.scanVIM(row, "default")
}

func (s *VIMService) scanVIM(row pgx.Row, ref string) (*model.VIM, error) {
	var v model.VIM
	var placement []byte
	err := row.Scan(&v.ID, &v.TenantID, &v.Name, &v.Description, &v.Type, &v.Auth,
		&placement, &v.IsDefault, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: model.ResTypeVIM, ID: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("get vim: %w", err)
	}
	if len(placement) > 0 {
		if err := json.Unmarshal(placement, &v.PlacementAttr); err != nil {
			return nil, fmt.Errorf("decode vim placement_attr: %w", err)
		}
	}
	return &v, nil
}

// GetVIM resolves a VIM with decrypted credentials for lifecycle use. An
// empty id selects the default VIM; region overrides the stored placement
// region when set.
func (s *VIMService) GetVIM(ctx context.Context, id, region string) (*model.VIMRecord, error) {
	var vim *model.VIM
	var err error
	if id == "" {
		vim, err = s.GetDefault(ctx)
	} else {
		vim, err = s.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	auth, err := s.vault.OpenAuth(vim.Auth)
	if err != nil {
		return nil, fmt.Errorf("get vim %s: %w", vim.ID, err)
	}

	if region == "" {
		region = vim.PlacementAttr["region_name"]
	}

	return &model.VIMRecord{
		ID:         vim.ID,
		Name:       vim.Name,
		Type:       vim.Type,
		Auth:       auth,
		RegionName: region,
	}, nil
}

func (s *VIMService) List(ctx context.Context) ([]model.VIM, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, description, type, placement_attr, is_default, status, created_at, updated_at
		 FROM vims WHERE deleted_at = $1 ORDER BY name`, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list vims: %w", err)
	}
	defer rows.Close()

	var vims []model.VIM
	for rows.Next() {
		var v model.VIM
		var placement []byte
		if err := rows.Scan(&v.ID, &v.TenantID, &v.Name, &v.Description, &v.Type,
			&placement, &v.IsDefault, &v.Status, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vim: %w", err)
		}
		if len(placement) > 0 {
			if err := json.Unmarshal(placement, &v.PlacementAttr); err != nil {
				return nil, fmt.Errorf("decode vim placement_attr: %w", err)
			}
		}
		vims = append(vims, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vims: %w", err)
	}
	return vims, nil
}

// Update replaces description, placement and optionally credentials.
func (s *VIMService) Update(ctx context.Context, vim *model.VIM, auth *model.VIMAuth) error {
	if auth != nil {
		sealed, err := s.vault.SealAuth(*auth)
		if err != nil {
			return fmt.Errorf("update vim: %w", err)
		}
		vim.Auth = sealed
		if _, err := s.db.Exec(ctx,
			`UPDATE vims SET auth = $1, updated_at = now() WHERE id = $2 AND deleted_at = $3`,
			vim.Auth, vim.ID, model.NotDeleted,
		); err != nil {
			return fmt.Errorf("update vim auth: %w", err)
		}
	}

	placement, err := json.Marshal(vim.PlacementAttr)
	if err != nil {
		return fmt.Errorf("update vim: encode placement_attr: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE vims SET description = $1, placement_attr = $2, updated_at = now()
		 WHERE id = $3 AND deleted_at = $4`,
		vim.Description, placement, vim.ID, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("update vim %s: %w", vim.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: model.ResTypeVIM, ID: vim.ID}
	}

	s.recordEvent(ctx, vim.ID, VIMStatusReachable, model.EventUpdate, "VIM updated")
	return nil
}

// Delete soft-deletes a VIM. A VIM referenced by any live instance is in
// use and cannot be removed.
func (s *VIMService) Delete(ctx context.Context, id string) error {
	for _, table := range []string{"meas", "mess", "mecas"} {
		var n int
		err := s.db.QueryRow(ctx,
			fmt.Sprintf(`SELECT count(*) FROM %s WHERE vim_id = $1 AND deleted_at = $2`, table),
			id, model.NotDeleted,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("check vim %s references: %w", id, err)
		}
		if n > 0 {
			return &InUseError{Resource: model.ResTypeVIM, ID: id, Detail: fmt.Sprintf("%d live rows in %s", n, table)}
		}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE vims SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("delete vim %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: model.ResTypeVIM, ID: id}
	}

	s.recordEvent(ctx, id, VIMStatusReachable, model.EventDelete, "VIM deleted")
	return nil
}

func (s *VIMService) clearDefault(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`UPDATE vims SET is_default = false WHERE is_default AND deleted_at = $1`,
		model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("clear default vim: %w", err)
	}
	return nil
}

func (s *VIMService) recordEvent(ctx context.Context, id, state, eventType, details string) {
	_ = s.events.Record(ctx, id, model.ResTypeVIM, state, eventType, details)
}
