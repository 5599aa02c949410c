package metadata

import "context"

// IdentityMedium adapts a Repository to identity.Medium.
type IdentityMedium struct {
	repo Repository
}

func NewIdentityMedium(repo Repository) *IdentityMedium {
	return &IdentityMedium{repo: repo}
}

func (m *IdentityMedium) Load(ctx context.Context) ([]byte, error) {
	data, err := m.repo.Get(ctx, KeyIdentity)
	if err != nil || len(data) == 0 {
		return nil, err
	}
	return data, nil
}

func (m *IdentityMedium) Save(ctx context.Context, data []byte) error {
	return m.repo.Set(ctx, KeyIdentity, data)
}

func (m *IdentityMedium) Clear(ctx context.Context) error {
	return m.repo.Delete(ctx, KeyIdentity)
}
