package services

import (
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
)

func TestMapPgErrorToServiceError_ForeignKeys(t *testing.T) {
	cases := []struct {
		name   string
		err    *pgconn.PgError
		status int
		code   string
		target error
	}{
		{
			name: "delete of position with assignments",
			err: &pgconn.PgError{
				Code:           "23503",
				ConstraintName: "org_assignments_position_id_fkey",
				Message:        `update or delete on table "org_positions" violates foreign key constraint "org_assignments_position_id_fkey" on table "org_assignments"`,
				Detail:         `Key (id)=(OLD) is still referenced from table "org_assignments".`,
			},
			status: http.StatusConflict,
			code:   CodeHasHistory,
			target: staffing.ErrPositionHasHistory,
		},
		{
			name: "delete of position with reports",
			err: &pgconn.PgError{
				Code:           "23503",
				ConstraintName: "org_positions_reports_to_fkey",
				Message:        `update or delete on table "org_positions" violates foreign key constraint "org_positions_reports_to_fkey" on table "org_positions"`,
			},
			status: http.StatusConflict,
			code:   CodeHasChildren,
			target: staffing.ErrPositionHasChildren,
		},
		{
			name: "assignment to missing position",
			err: &pgconn.PgError{
				Code:           "23503",
				ConstraintName: "org_assignments_position_id_fkey",
				Message:        `insert or update on table "org_assignments" violates foreign key constraint "org_assignments_position_id_fkey"`,
				Detail:         `Key (position_id)=(NOPE) is not present in table "org_positions".`,
			},
			status: http.StatusNotFound,
			code:   CodeNotFound,
			target: staffing.ErrPositionNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			se := mapPgErrorToServiceError(tc.err)
			require.NotNil(t, se)
			require.Equal(t, tc.status, se.Status)
			require.Equal(t, tc.code, se.Code)
			require.ErrorIs(t, se, tc.target)
		})
	}
}
