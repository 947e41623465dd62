package resourcedb

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

func TestResourceFilterValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	owner := "subject-1"

	tests := []struct {
		name     string
		filter   ResourceFilter
		wantCode string
	}{
		{
			name:   "type only",
			filter: ResourceFilter{Type: "task.item"},
		},
		{
			name: "full allowlist",
			filter: ResourceFilter{
				Type:      "task.*",
				OwnerID:   &owner,
				CreatedAt: []TimeComparison{{Op: CompareGte, Value: now}},
				UpdatedAt: []TimeComparison{{Op: CompareLt, Value: now}},
			},
		},
		{
			name:     "missing type",
			filter:   ResourceFilter{},
			wantCode: errors.EInvalid,
		},
		{
			name:     "invalid type pattern",
			filter:   ResourceFilter{Type: "task.*.item"},
			wantCode: errors.EInvalid,
		},
		{
			name: "too many predicates",
			filter: ResourceFilter{
				Type:    "task.item",
				OwnerID: &owner,
				IDs:     []string{"a"},
				CreatedAt: []TimeComparison{
					{Op: CompareGt, Value: now},
					{Op: CompareLt, Value: now},
				},
				UpdatedAt: []TimeComparison{{Op: CompareEq, Value: now}},
			},
			wantCode: errors.EInvalidQuery,
		},
		{
			name: "id membership over the cap",
			filter: ResourceFilter{
				Type: "task.item",
				IDs:  manyIDs(MaxIDMembership + 1),
			},
			wantCode: errors.EInvalidQuery,
		},
		{
			name: "unknown comparison operator",
			filter: ResourceFilter{
				Type:      "task.item",
				CreatedAt: []TimeComparison{{Op: "like", Value: now}},
			},
			wantCode: errors.EInvalidQuery,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.filter.Validate()
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, tt.wantCode, errors.ErrorCode(err))
		})
	}
}

func manyIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("id-%d", i)
	}
	return out
}

func TestFindOptionsNormalize(t *testing.T) {
	t.Parallel()

	opts, err := FindOptions{}.Normalize()
	require.NoError(t, err)
	require.Equal(t, SortByCreatedAt, opts.SortBy)
	require.Equal(t, DefaultPageSize, opts.Limit)

	opts, err = FindOptions{SortBy: SortByUpdatedAt, Limit: MaxPageSize}.Normalize()
	require.NoError(t, err)
	require.Equal(t, MaxPageSize, opts.Limit)

	_, err = FindOptions{Limit: MaxPageSize + 1}.Normalize()
	require.Equal(t, errors.EInvalidQuery, errors.ErrorCode(err))

	_, err = FindOptions{Limit: -1}.Normalize()
	require.Equal(t, errors.EInvalidQuery, errors.ErrorCode(err))

	_, err = FindOptions{SortBy: "payload.x"}.Normalize()
	require.Equal(t, errors.EInvalidQuery, errors.ErrorCode(err))
}
