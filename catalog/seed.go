package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbolis/quick-survey/log"
	"github.com/mbolis/quick-survey/model"
)

//go:embed seeds/*.yaml
var embeddedSeeds embed.FS

// SeedSet is one versioned revision of the question bank.
type SeedSet struct {
	Name      string         `yaml:"name"`
	Questions []SeedQuestion `yaml:"questions"`
}

type SeedQuestion struct {
	ID             int            `yaml:"id"`
	Category       string         `yaml:"category"`
	Prompt         string         `yaml:"prompt"`
	TargetAudience model.Audience `yaml:"target_audience"`
	Note           string         `yaml:"note"`
	Active         *bool          `yaml:"active"`
	// Options is nil when the key is absent, leaving current options alone.
	Options []SeedOption `yaml:"options"`
	// ReplaceOptions drops options whose value is not listed.
	ReplaceOptions bool `yaml:"replace_options"`
}

type SeedOption struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// EmbeddedSeeds returns the seed sets shipped with the binary.
func EmbeddedSeeds() ([]SeedSet, error) {
	return LoadSeeds(embeddedSeeds, "seeds")
}

// LoadSeeds decodes every *.yaml file under dir, in lexical file order.
func LoadSeeds(fsys fs.FS, dir string) ([]SeedSet, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	sets := make([]SeedSet, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		set, err := ParseSeed(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if set.Name == "" {
			set.Name = path.Base(name)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func ParseSeed(data []byte) (set SeedSet, err error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&set); err != nil {
		return
	}
	err = set.validate()
	return
}

func (set SeedSet) validate() error {
	seen := map[int]bool{}
	for _, q := range set.Questions {
		if q.ID <= 0 {
			return fmt.Errorf("question id must be positive, got %d", q.ID)
		}
		if seen[q.ID] {
			return fmt.Errorf("question %d listed twice", q.ID)
		}
		seen[q.ID] = true
		if q.Prompt == "" {
			return fmt.Errorf("question %d: empty prompt", q.ID)
		}
		if q.TargetAudience != "" && !q.TargetAudience.Valid() {
			return fmt.Errorf("question %d: unknown target audience %q", q.ID, q.TargetAudience)
		}
		values := map[string]bool{}
		for _, o := range q.Options {
			if o.Value == "" {
				return fmt.Errorf("question %d: option without value", q.ID)
			}
			if values[o.Value] {
				return fmt.Errorf("question %d: duplicate option value %q", q.ID, o.Value)
			}
			values[o.Value] = true
		}
	}
	return nil
}

// Seed upserts each set in order, one transaction per set. Applying the
// same data again creates no rows and keeps every id.
func Seed(ctx context.Context, db *sql.DB, sets ...SeedSet) error {
	for _, set := range sets {
		if err := seedOne(ctx, db, set); err != nil {
			return fmt.Errorf("seed %s: %w", set.Name, err)
		}
		log.Debugf("catalog.seed: applied %s (%d questions)", set.Name, len(set.Questions))
	}
	return nil
}

func seedOne(ctx context.Context, db *sql.DB, set SeedSet) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, q := range set.Questions {
		audience := q.TargetAudience
		if audience == "" {
			audience = model.AudienceAll
		}
		active := true
		if q.Active != nil {
			active = *q.Active
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO question (id, category, prompt, target_audience, note, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE
			SET
				category = excluded.category,
				prompt = excluded.prompt,
				target_audience = excluded.target_audience,
				note = excluded.note,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at
			WHERE category IS NOT excluded.category
				OR prompt IS NOT excluded.prompt
				OR target_audience IS NOT excluded.target_audience
				OR note IS NOT excluded.note
				OR is_active IS NOT excluded.is_active`,
			q.ID, q.Category, q.Prompt, string(audience), q.Note, active, now, now,
		)
		if err != nil {
			return fmt.Errorf("question %d: %w", q.ID, err)
		}

		if q.Options == nil && !q.ReplaceOptions {
			continue
		}
		options := make([]model.QuestionOption, len(q.Options))
		for i, o := range q.Options {
			options[i] = model.QuestionOption{Value: o.Value, Label: o.Label}
		}
		err = replaceOptions(ctx, tx, q.ID, options, q.ReplaceOptions, now)
		if err != nil {
			return fmt.Errorf("question %d options: %w", q.ID, err)
		}
	}

	return tx.Commit()
}
