package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const listingCSV = `data_id,program_name,university,discipline,sub_discipline,tags,academic_level,programme_type,application_dates,fee_range,program_link,extra
1,BSc Computing,University of London,IT,Computer Science,tech,Bachelor,Full-time,Jan,"100000-150000",/programmes/bsc-computing,x
2,MBA,,Business,,,Master,Part-time,,,https://www.example.edu/mba,y
3,Diploma,SIM,Arts,,,Diploma,,,,diploma-arts
`

func TestReadListings(t *testing.T) {
	t.Parallel()

	listings, err := ReadListings(strings.NewReader(listingCSV))
	require.NoError(t, err)
	require.Len(t, listings, 3)
	require.Equal(t, "BSc Computing", listings[0].ProgramName)
	require.Equal(t, "100000-150000", listings[0].FeeRange)
	require.Equal(t, "", listings[1].University)
	require.Equal(t, "diploma-arts", listings[2].ProgramLink)
}

func TestReadListingsMissingColumns(t *testing.T) {
	t.Parallel()

	_, err := ReadListings(strings.NewReader("data_id,program_name\n1,x\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "program_link")
}

func TestReadListingsEmpty(t *testing.T) {
	t.Parallel()

	_, err := ReadListings(strings.NewReader(""))
	require.Error(t, err)
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		link    string
		want    string
		wantErr bool
	}{
		{name: "absolute", link: "https://other.edu/p", want: "https://other.edu/p"},
		{name: "rooted", link: "/programmes/x", want: "https://www.sim.edu.sg/programmes/x"},
		{name: "relative", link: "programmes/y", want: "https://www.sim.edu.sg/programmes/y"},
		{name: "empty", link: "  ", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveURL("https://www.sim.edu.sg", tt.link)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTasksFromListingsKeepsEveryRow(t *testing.T) {
	t.Parallel()

	tasks := TasksFromListings("https://www.sim.edu.sg", []Listing{
		{DataID: "1", ProgramLink: "/a"},
		{DataID: "2", ProgramLink: ""},
	})
	require.Len(t, tasks, 2)
	require.Equal(t, "https://www.sim.edu.sg/a", tasks[0].URL)
	require.Equal(t, "", tasks[1].URL)
	require.Equal(t, TaskPending, tasks[1].State)
}

func TestReadListingsStripsByteOrderMark(t *testing.T) {
	t.Parallel()

	listings, err := ReadListings(strings.NewReader("\uFEFF" + listingCSV))
	require.NoError(t, err)
	require.Len(t, listings, 3)
	require.Equal(t, "1", listings[0].DataID)
}
