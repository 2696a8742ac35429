package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCompanyFilter(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()

	testCases := []struct {
		name       string
		scope      Scope
		wantID     uuid.UUID
		wantFilter bool
	}{
		{
			name:       "company admin is pinned to own company",
			scope:      Scope{UserType: CompanyAdmin, CompanyID: companyID},
			wantID:     companyID,
			wantFilter: true,
		},
		{
			name:       "employee without company still filters",
			scope:      Scope{UserType: Employee},
			wantID:     uuid.Nil,
			wantFilter: true,
		},
		{
			name:       "unbound system owner spans all companies",
			scope:      System(),
			wantID:     uuid.Nil,
			wantFilter: false,
		},
		{
			name:       "bound system owner filters",
			scope:      System().ForCompany(companyID),
			wantID:     companyID,
			wantFilter: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, filter := tc.scope.CompanyFilter()
			require.Equal(t, tc.wantFilter, filter)
			require.Equal(t, tc.wantID, id)
		})
	}
}

func TestForCompanyIgnoredForTenantUsers(t *testing.T) {
	t.Parallel()

	own := uuid.New()
	scope := Scope{UserType: CompanyAdmin, CompanyID: own}.ForCompany(uuid.New())
	require.Equal(t, own, scope.CompanyID)
}

func TestScopeContextRoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	require.False(t, ok)

	scope := Scope{UserID: uuid.New(), UserType: Employee, CompanyID: uuid.New()}
	got, ok := FromContext(WithScope(context.Background(), scope))
	require.True(t, ok)
	require.Equal(t, scope, got)
}
