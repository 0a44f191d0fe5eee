package dataverse

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryOptions_Encode(t *testing.T) {
	tests := []struct {
		name string
		opts *QueryOptions
		want url.Values
	}{
		{
			name: "nil options",
			opts: nil,
			want: url.Values{},
		},
		{
			name: "empty options",
			opts: &QueryOptions{},
			want: url.Values{},
		},
		{
			name: "select and filter",
			opts: &QueryOptions{
				Select: []string{"fullname", "emailaddress1"},
				Filter: "statecode eq 0",
			},
			want: url.Values{
				"$select": {"fullname,emailaddress1"},
				"$filter": {"statecode eq 0"},
			},
		},
		{
			name: "order by and top",
			opts: &QueryOptions{
				OrderBy: []string{"createdon desc", "fullname"},
				Top:     25,
			},
			want: url.Values{
				"$orderby": {"createdon desc,fullname"},
				"$top":     {"25"},
			},
		},
		{
			name: "expand and count",
			opts: &QueryOptions{
				Expand: []string{"parentcustomerid_account"},
				Count:  true,
			},
			want: url.Values{
				"$expand": {"parentcustomerid_account"},
				"$count":  {"true"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.opts.encode()

			parsed, err := url.ParseQuery(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.want, parsed)
		})
	}
}

func TestQueryOptions_PreferHeader(t *testing.T) {
	var nilOpts *QueryOptions
	assert.Empty(t, nilOpts.preferHeader())

	assert.Empty(t, (&QueryOptions{}).preferHeader())
	assert.Equal(t, "odata.maxpagesize=100", (&QueryOptions{MaxPageSize: 100}).preferHeader())

	// Dataverse caps page size at 5000
	assert.Equal(t, "odata.maxpagesize=5000", (&QueryOptions{MaxPageSize: 9000}).preferHeader())
}
