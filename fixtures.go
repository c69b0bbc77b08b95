package campus

import (
	"fmt"
	"io"
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const (
	DemoAdminID      = "demo-user-123"
	DemoAdminEmail   = "admin@universidadedigital.com"
	DemoStudentID    = "demo-student-456"
	DemoStudentEmail = "aluno@universidadedigital.com"
	DemoPassword     = "123456"

	demoAccessToken  = "demo-token"
	demoRefreshToken = "demo-refresh"
)

// Fixture is a local identity that never reaches the backend.
type Fixture struct {
	ID       string `yaml:"id" json:"id"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
	Name     string `yaml:"name" json:"name"`
	Role     Role   `yaml:"role" json:"role"`
}

// Validate checks the fixture is usable.
func (f Fixture) Validate() error {
	if f.ID == "" || f.Email == "" || f.Password == "" {
		return goerrors.New("fixture requires id, email and password", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"id": f.ID, "email": f.Email})
	}
	if !f.Role.IsValid() {
		return WrapError(ErrInvalidProfile, nil, map[string]any{"id": f.ID, "role": f.Role})
	}
	return nil
}

// DefaultFixtures returns the two demo identities.
func DefaultFixtures() []Fixture {
	return []Fixture{
		{
			ID:       DemoAdminID,
			Email:    DemoAdminEmail,
			Password: DemoPassword,
			Name:     "Administrador Demo",
			Role:     RoleAdmin,
		},
		{
			ID:       DemoStudentID,
			Email:    DemoStudentEmail,
			Password: DemoPassword,
			Name:     "João Silva",
			Role:     RoleStudent,
		},
	}
}

type fixtureFile struct {
	Fixtures []struct {
		ID       string `yaml:"id"`
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Role     string `yaml:"role"`
	} `yaml:"fixtures"`
}

// LoadFixtures decodes a YAML fixture document:
//
//	fixtures:
//	  - id: demo-user-123
//	    email: admin@universidadedigital.com
//	    password: "123456"
//	    name: Administrador Demo
//	    role: admin
func LoadFixtures(r io.Reader) ([]Fixture, error) {
	var doc fixtureFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to decode fixtures")
	}

	out := make([]Fixture, 0, len(doc.Fixtures))
	for i, raw := range doc.Fixtures {
		role, ok := ParseRole(raw.Role)
		if !ok {
			return nil, WrapError(ErrInvalidProfile, nil, map[string]any{
				"index": i,
				"role":  raw.Role,
			})
		}
		f := Fixture{
			ID:       strings.TrimSpace(raw.ID),
			Email:    strings.TrimSpace(raw.Email),
			Password: raw.Password,
			Name:     strings.TrimSpace(raw.Name),
			Role:     role,
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// LoadFixturesFile reads fixtures from path.
func LoadFixturesFile(path string) ([]Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("unable to open fixtures %s", path))
	}
	defer fh.Close()
	return LoadFixtures(fh)
}
