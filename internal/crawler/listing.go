package crawler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ListingColumns are the CSV columns every listing file must carry.
var ListingColumns = []string{
	"data_id",
	"program_name",
	"university",
	"discipline",
	"sub_discipline",
	"tags",
	"academic_level",
	"programme_type",
	"application_dates",
	"fee_range",
	"program_link",
}

// ReadListings decodes a listing CSV. Extra columns are ignored and empty
// cells become empty strings.
func ReadListings(r io.Reader) ([]Listing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("listing csv is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}
	var missing []string
	for _, col := range ListingColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("listing csv missing columns: %s", strings.Join(missing, ", "))
	}

	var out []Listing
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		cell := func(col string) string {
			i := index[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		out = append(out, Listing{
			DataID:           cell("data_id"),
			ProgramName:      cell("program_name"),
			University:       cell("university"),
			Discipline:       cell("discipline"),
			SubDiscipline:    cell("sub_discipline"),
			Tags:             cell("tags"),
			AcademicLevel:    cell("academic_level"),
			ProgrammeType:    cell("programme_type"),
			ApplicationDates: cell("application_dates"),
			FeeRange:         cell("fee_range"),
			ProgramLink:      cell("program_link"),
		})
	}
	return out, nil
}

// ResolveURL turns a listing link into an absolute URL against base.
func ResolveURL(base, link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", errors.New("program link is empty")
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse program link: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return "", fmt.Errorf("invalid base url %q", base)
	}
	if !strings.HasPrefix(link, "/") {
		ref, err = url.Parse("/" + link)
		if err != nil {
			return "", fmt.Errorf("parse program link: %w", err)
		}
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// TasksFromListings builds pending crawl tasks, one per listing row.
func TasksFromListings(base string, listings []Listing) []CrawlTask {
	tasks := make([]CrawlTask, 0, len(listings))
	for _, l := range listings {
		target, err := ResolveURL(base, l.ProgramLink)
		if err != nil {
			target = l.ProgramLink
		}
		tasks = append(tasks, CrawlTask{URL: target, Listing: l, State: TaskPending})
	}
	return tasks
}
