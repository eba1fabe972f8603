package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/refugios-lanche/api/internal/domain"
	pfirestore "github.com/refugios-lanche/api/internal/platform/firestore"
	"github.com/refugios-lanche/api/internal/repositories"
)

const adminsCollection = "admins"

type adminDocument struct {
	Name         string     `firestore:"name"`
	Email        string     `firestore:"email"`
	PasswordHash string     `firestore:"passwordHash"`
	Role         string     `firestore:"role"`
	Active       bool       `firestore:"active"`
	LastLoginAt  *time.Time `firestore:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

// AdminRepository stores back-office accounts in Firestore.
type AdminRepository struct {
	base     *pfirestore.BaseRepository[adminDocument]
	provider *pfirestore.Provider
}

var _ repositories.AdminRepository = (*AdminRepository)(nil)

// NewAdminRepository constructs a Firestore-backed admin repository.
func NewAdminRepository(provider *pfirestore.Provider) (*AdminRepository, error) {
	if provider == nil {
		return nil, errors.New("admin repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[adminDocument](provider, adminsCollection, nil, nil)
	return &AdminRepository{base: base, provider: provider}, nil
}

// Insert creates the admin account. Inserting an existing ID yields a conflict error.
func (r *AdminRepository) Insert(ctx context.Context, admin domain.Admin) error {
	if r == nil || r.base == nil {
		return errors.New("admin repository not initialised")
	}
	if strings.TrimSpace(admin.ID) == "" {
		return errors.New("admin id is required")
	}

	ref, err := r.base.DocumentRef(ctx, admin.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainAdmin(admin)); err != nil {
		return pfirestore.WrapError("admins.insert", err)
	}
	return nil
}

// Update overwrites the stored admin document.
func (r *AdminRepository) Update(ctx context.Context, admin domain.Admin) error {
	if r == nil || r.base == nil {
		return errors.New("admin repository not initialised")
	}
	if strings.TrimSpace(admin.ID) == "" {
		return errors.New("admin id is required")
	}
	_, err := r.base.Set(ctx, admin.ID, fromDomainAdmin(admin))
	return err
}

// FindByID loads the admin account by ID.
func (r *AdminRepository) FindByID(ctx context.Context, adminID string) (domain.Admin, error) {
	if r == nil || r.base == nil {
		return domain.Admin{}, errors.New("admin repository not initialised")
	}
	doc, err := r.base.Get(ctx, adminID)
	if err != nil {
		return domain.Admin{}, err
	}
	return toDomainAdmin(doc.ID, doc.Data), nil
}

// FindByEmail resolves the admin account by its login email.
func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (domain.Admin, error) {
	if r == nil || r.base == nil {
		return domain.Admin{}, errors.New("admin repository not initialised")
	}
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return domain.Admin{}, errors.New("email is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("email", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Admin{}, err
	}
	if len(docs) == 0 {
		return domain.Admin{}, pfirestore.WrapError("admins.find_by_email", status.Error(codes.NotFound, "admin not found"))
	}
	return toDomainAdmin(docs[0].ID, docs[0].Data), nil
}

func fromDomainAdmin(admin domain.Admin) adminDocument {
	return adminDocument{
		Name:         strings.TrimSpace(admin.Name),
		Email:        strings.ToLower(strings.TrimSpace(admin.Email)),
		PasswordHash: admin.PasswordHash,
		Role:         strings.ToLower(strings.TrimSpace(admin.Role)),
		Active:       admin.Active,
		LastLoginAt:  admin.LastLoginAt,
		CreatedAt:    admin.CreatedAt,
		UpdatedAt:    admin.UpdatedAt,
	}
}

func toDomainAdmin(id string, doc adminDocument) domain.Admin {
	return domain.Admin{
		ID:           id,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Role:         doc.Role,
		Active:       doc.Active,
		LastLoginAt:  doc.LastLoginAt,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
