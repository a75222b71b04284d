package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document the memory driver loads at startup.
//
//	sequences:
//	  - id: onboarding
//	    steps:
//	      - content_ref: welcome
//	      - content_ref: follow-up
//	        delay: 48h
//	        anchor: previous
//	templates:
//	  welcome: {subject: "Welcome", html: "<p>Hi</p>"}
//	enrollments:
//	  - id: e1
//	    sequence_id: onboarding
//	    email: ada@example.com
type Seed struct {
	Sequences   []SeedSequence          `yaml:"sequences"`
	Templates   map[string]SeedTemplate `yaml:"templates"`
	Enrollments []SeedEnrollment        `yaml:"enrollments"`
}

type SeedSequence struct {
	ID             string     `yaml:"id"`
	OrganizationID string     `yaml:"organization_id"`
	Name           string     `yaml:"name"`
	Steps          []SeedStep `yaml:"steps"`
}

// SeedStep positions are implied by list order.
type SeedStep struct {
	ContentRef string `yaml:"content_ref"`
	Delay      string `yaml:"delay"`
	Anchor     string `yaml:"anchor"`
}

type SeedTemplate struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Text    string `yaml:"text"`
}

type SeedEnrollment struct {
	ID         string    `yaml:"id"`
	SequenceID string    `yaml:"sequence_id"`
	ContactID  string    `yaml:"contact_id"`
	Email      string    `yaml:"email"`
	Status     string    `yaml:"status"`
	CreatedAt  time.Time `yaml:"created_at"`
}

// SeedStats counts what a load inserted.
type SeedStats struct {
	Sequences   int
	Templates   int
	Enrollments int
}

// LoadSeedFile reads path and loads it into the stores.
func LoadSeedFile(path string, seqs *SequenceStore, enrollments *EnrollmentStore) (SeedStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedStats{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f, seqs, enrollments)
}

// LoadSeed decodes a Seed from r and loads it. Nothing is stored unless
// the whole document is valid.
func LoadSeed(r io.Reader, seqs *SequenceStore, enrollments *EnrollmentStore) (SeedStats, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return SeedStats{}, fmt.Errorf("failed to parse seed: %w", err)
	}

	defs := make(map[string]domain.Sequence, len(seed.Sequences))
	for _, ss := range seed.Sequences {
		seq, err := ss.toDomain()
		if err != nil {
			return SeedStats{}, err
		}
		if err := seq.Validate(); err != nil {
			return SeedStats{}, err
		}
		if _, dup := defs[seq.ID]; dup {
			return SeedStats{}, fmt.Errorf("duplicate sequence %q in seed", seq.ID)
		}
		defs[seq.ID] = seq
	}

	now := time.Now().UTC()
	ens := make([]domain.Enrollment, 0, len(seed.Enrollments))
	for _, se := range seed.Enrollments {
		e, err := se.toDomain(now)
		if err != nil {
			return SeedStats{}, err
		}
		if _, ok := defs[e.SequenceID]; !ok {
			if _, err := seqs.Get(context.Background(), e.SequenceID); err != nil {
				return SeedStats{}, fmt.Errorf("enrollment %q references unknown sequence %q", e.ID, e.SequenceID)
			}
		}
		ens = append(ens, e)
	}

	for _, seq := range defs {
		if err := seqs.Put(seq); err != nil {
			return SeedStats{}, err
		}
	}
	for ref, t := range seed.Templates {
		seqs.PutContent(ref, sequence.Content{Subject: t.Subject, HTMLContent: t.HTML, TextContent: t.Text})
	}
	for _, e := range ens {
		enrollments.Put(e)
	}
	return SeedStats{Sequences: len(defs), Templates: len(seed.Templates), Enrollments: len(ens)}, nil
}

func (ss SeedSequence) toDomain() (domain.Sequence, error) {
	if strings.TrimSpace(ss.ID) == "" {
		return domain.Sequence{}, fmt.Errorf("seed sequence without id")
	}
	seq := domain.Sequence{
		ID:             ss.ID,
		OrganizationID: ss.OrganizationID,
		Name:           ss.Name,
		Steps:          make([]domain.Step, len(ss.Steps)),
	}
	for i, st := range ss.Steps {
		var delay time.Duration
		if st.Delay != "" {
			d, err := time.ParseDuration(st.Delay)
			if err != nil {
				return domain.Sequence{}, fmt.Errorf("sequence %q step %d: invalid delay %q", ss.ID, i, st.Delay)
			}
			delay = d
		}
		seq.Steps[i] = domain.Step{
			Position:   i,
			Delay:      delay,
			Anchor:     domain.DelayAnchor(st.Anchor),
			ContentRef: st.ContentRef,
		}
	}
	return seq, nil
}

func (se SeedEnrollment) toDomain(now time.Time) (domain.Enrollment, error) {
	if strings.TrimSpace(se.ID) == "" || strings.TrimSpace(se.Email) == "" {
		return domain.Enrollment{}, fmt.Errorf("seed enrollment needs id and email")
	}
	status := domain.EnrollmentStatus(se.Status)
	switch status {
	case "":
		status = domain.EnrollmentActive
	case domain.EnrollmentActive, domain.EnrollmentPaused:
	default:
		return domain.Enrollment{}, fmt.Errorf("enrollment %q: seed status must be active or paused, got %q", se.ID, se.Status)
	}
	created := se.CreatedAt
	if created.IsZero() {
		created = now
	}
	return domain.Enrollment{
		ID:         se.ID,
		SequenceID: se.SequenceID,
		ContactID:  se.ContactID,
		Email:      se.Email,
		Status:     status,
		CreatedAt:  created.UTC(),
		UpdatedAt:  created.UTC(),
	}, nil
}
