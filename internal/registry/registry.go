// Package registry loads the company and user registry from a YAML seed
// file and writes it to the store.
package registry

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/news-intel/internal/model"
)

// Registry is the canonical set of tracked companies and alert subscribers.
// Company order is significant: it breaks resolver ties.
type Registry struct {
	Companies []model.Company `yaml:"companies"`
	Users     []model.User    `yaml:"users"`
}

// Store is the persistence the seeder writes to.
type Store interface {
	UpsertCompanies(ctx context.Context, companies []model.Company) error
	UpsertUsers(ctx context.Context, users []model.User) error
}

// LoadFile reads and validates a YAML registry file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read seed file")
	}
	return Parse(data)
}

// Parse decodes and validates a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal seed file")
	}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Registry) normalize() error {
	companyIDs := make(map[string]bool, len(r.Companies))
	for i := range r.Companies {
		c := &r.Companies[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		if c.ID == "" || c.Name == "" {
			return eris.Errorf("registry: company %d needs id and name", i)
		}
		if companyIDs[c.ID] {
			return eris.Errorf("registry: duplicate company id %q", c.ID)
		}
		companyIDs[c.ID] = true
	}

	userIDs := make(map[string]bool, len(r.Users))
	for i := range r.Users {
		u := &r.Users[i]
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return eris.Errorf("registry: user %d needs an id", i)
		}
		if userIDs[u.ID] {
			return eris.Errorf("registry: duplicate user id %q", u.ID)
		}
		userIDs[u.ID] = true

		if u.Role == "" {
			u.Role = model.RoleMember
		}
		if u.PriorityThreshold == 0 {
			u.PriorityThreshold = model.PriorityMedium
		}
		if u.AssignedCompanyIDs == nil {
			u.AssignedCompanyIDs = []string{}
		}
		for _, cid := range u.AssignedCompanyIDs {
			if !companyIDs[cid] {
				zap.L().Warn("registry: user assigned to unknown company",
					zap.String("user_id", u.ID),
					zap.String("company_id", cid),
				)
			}
		}
	}
	return nil
}

// Seed writes the registry to the store. Re-seeding is idempotent.
func Seed(ctx context.Context, st Store, r *Registry) error {
	if err := st.UpsertCompanies(ctx, r.Companies); err != nil {
		return eris.Wrap(err, "registry: seed companies")
	}
	if err := st.UpsertUsers(ctx, r.Users); err != nil {
		return eris.Wrap(err, "registry: seed users")
	}
	zap.L().Info("registry: seeded",
		zap.Int("companies", len(r.Companies)),
		zap.Int("users", len(r.Users)),
	)
	return nil
}
