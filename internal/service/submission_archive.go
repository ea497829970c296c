package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// ArchiveForAssignment is the class-rep facing archive download: it checks
// the actor's role, resolves student names, and returns the zip bytes plus a
// suggested file name.
func (s *submissionService) ArchiveForAssignment(ctx context.Context, actorID, assignmentID uint) ([]byte, string, error) {
	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, "", err
	}

	if err := s.requireMembership(ctx, actorID, assignment.ClassID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return nil, "", err
	}

	names, err := s.studentNames(ctx, assignmentID)
	if err != nil {
		return nil, "", err
	}

	archive, err := s.BuildArchive(ctx, assignmentID, names)
	if err != nil {
		return nil, "", err
	}

	return archive, fmt.Sprintf("%s-submissions.zip", sanitizeEntryName(assignment.Title)), nil
}

// BuildArchive packages every stored submission file of the assignment into a
// single zip. Files are fetched concurrently; the zip itself is written
// sequentially so entry ordering is deterministic. A file that cannot be
// fetched becomes a placeholder text entry instead of failing the archive.
func (s *submissionService) BuildArchive(ctx context.Context, assignmentID uint, namesByStudent map[uint]string) ([]byte, error) {
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	stored := submissions[:0:0]
	for _, sub := range submissions {
		if sub.HasStoredFile() {
			stored = append(stored, sub)
		}
	}

	type fetchResult struct {
		data []byte
		err  error
	}

	results := make([]fetchResult, len(stored))
	var wg sync.WaitGroup
	for i := range stored {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reader, err := s.storage.Download(ctx, stored[i].FileURL)
			if err != nil {
				results[i] = fetchResult{err: err}
				return
			}
			defer reader.Close()
			data, err := io.ReadAll(reader)
			results[i] = fetchResult{data: data, err: err}
		}(i)
	}
	wg.Wait()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	used := make(map[string]struct{}, len(stored))

	for i, sub := range stored {
		student := namesByStudent[sub.StudentID]
		if student == "" {
			student = fmt.Sprintf("student-%d", sub.StudentID)
		}

		if results[i].err != nil {
			s.logger.Warn().Err(results[i].err).
				Uint("submission_id", sub.ID).
				Msg("submission file unreachable, writing placeholder entry")

			name := uniqueEntryName(student, sub.FileName+".unavailable.txt", used)
			w, err := zw.Create(name)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(w, "The file %q could not be retrieved: %v\n", sub.FileName, results[i].err)
			continue
		}

		name := uniqueEntryName(student, sub.FileName, used)
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(results[i].data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (s *submissionService) studentNames(ctx context.Context, assignmentID uint) (map[uint]string, error) {
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(submissions))
	for _, sub := range submissions {
		ids = append(ids, sub.StudentID)
	}

	return s.users.NamesByID(ctx, ids)
}

// uniqueEntryName prefixes the file with the sanitized student name and
// disambiguates collisions with an incrementing counter.
func uniqueEntryName(student, file string, used map[string]struct{}) string {
	base := sanitizeEntryName(student)
	candidate := fmt.Sprintf("%s_%s", base, file)
	for n := 1; ; n++ {
		if _, taken := used[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s_%d_%s", base, n, file)
	}
	used[candidate] = struct{}{}
	return candidate
}

func sanitizeEntryName(name string) string {
	sanitized := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sanitized = append(sanitized, r)
		default:
			sanitized = append(sanitized, '_')
		}
	}
	return string(sanitized)
}
