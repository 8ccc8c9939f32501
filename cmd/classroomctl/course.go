package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
)

func seedCourseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-course",
		Short: "Create or replace courses from a JSON file",
		Long: "Reads one course object or an array of them. Courses with an id are " +
			"replaced in place; courses without one get a generated id.",
		RunE: runSeedCourse,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "", "Path to the course JSON (- for stdin)")
	f.String("professor-email", "", "Owner for courses that do not name a professor id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSeedCourse(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)

	raw, err := readInput(cmd.InOrStdin(), v.GetString("file"))
	if err != nil {
		return err
	}
	courses, err := decodeCourses(raw)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	owner := ""
	if email := v.GetString("professor-email"); email != "" {
		p, err := repository.NewProfessorRepository(e.docs).GetByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("look up professor %s: %w", email, err)
		}
		owner = p.ID
	}

	repo := repository.NewCourseRepository(e.docs, e.rdb, e.cfg.ExamCacheTTL)
	out := cmd.OutOrStdout()
	for i := range courses {
		c := &courses[i]
		if c.ProfessorID == "" {
			c.ProfessorID = owner
		}
		if err := validateCourse(c); err != nil {
			return fmt.Errorf("course %d: %w", i, err)
		}
		if err := repo.Upsert(ctx, c); err != nil {
			return fmt.Errorf("course %q: %w", c.Name, err)
		}
		fmt.Fprintf(out, "Seeded course %q (%s) with %d sessions, %d documented\n",
			c.Name, c.ID, len(c.Sessions), len(c.DocumentedSessions()))
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

// decodeCourses accepts either a single course object or an array.
func decodeCourses(raw []byte) ([]model.Course, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty course file")
	}
	if raw[0] == '[' {
		var list []model.Course
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode courses: %w", err)
		}
		return list, nil
	}
	var c model.Course
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode course: %w", err)
	}
	return []model.Course{c}, nil
}

func validateCourse(c *model.Course) error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.ProfessorID == "" {
		return errors.New("no professor id; pass --professor-email")
	}
	seen := make(map[int]bool, len(c.Sessions))
	for _, s := range c.Sessions {
		if s.Number < 1 {
			return fmt.Errorf("session %q has number %d", s.Title, s.Number)
		}
		if seen[s.Number] {
			return fmt.Errorf("duplicate session number %d", s.Number)
		}
		seen[s.Number] = true
	}
	return nil
}
