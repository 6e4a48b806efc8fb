package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// membershipInRow is one `_in` candidate: a member reference plus
// whatever period/inactive qualifiers its containing collection attached
// to it (Group.member, CareTeam.participant).
type membershipInRow struct {
	memberType    string
	memberID      string
	memberInactive bool
	periodStart   *time.Time
	periodEnd     *time.Time
}

type membershipListRow struct {
	memberType string
	memberID   string
}

func isTruthyBool(v json.RawMessage) bool {
	var b bool
	return json.Unmarshal(v, &b) == nil && b
}

func stringEqualFold(v json.RawMessage, expected string) bool {
	var s string
	if json.Unmarshal(v, &s) != nil {
		return false
	}
	return strings.EqualFold(s, expected)
}

func parseFhirDatetime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parsePeriodBounds(period json.RawMessage) (*time.Time, *time.Time) {
	var p struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if json.Unmarshal(period, &p) != nil {
		return nil, nil
	}
	var start, end *time.Time
	if p.Start != "" {
		start = parseFhirDatetime(p.Start)
	}
	if p.End != "" {
		end = parseFhirDatetime(p.End)
	}
	return start, end
}

// referenceTarget is the (resourceType, id) a Reference literal resolves
// to; relative references (`Patient/123`) are the only kind indexed.
type referenceTarget struct {
	targetType string
	targetID   string
}

func extractReferenceTargets(v json.RawMessage) []referenceTarget {
	var ref struct {
		Reference string `json:"reference"`
	}
	if json.Unmarshal(v, &ref) != nil || ref.Reference == "" {
		return nil
	}
	parts := strings.SplitN(ref.Reference, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	return []referenceTarget{{targetType: parts[0], targetID: parts[1]}}
}

func extractGroupMembers(body json.RawMessage) []membershipInRow {
	var g struct {
		Active *bool `json:"active"`
		Member []struct {
			Inactive *bool           `json:"inactive"`
			Period   json.RawMessage `json:"period"`
			Entity   json.RawMessage `json:"entity"`
		} `json:"member"`
	}
	if json.Unmarshal(body, &g) != nil {
		return nil
	}
	// Conservative: an inactive Group has no active members.
	if g.Active != nil && !*g.Active {
		return nil
	}

	var out []membershipInRow
	for _, m := range g.Member {
		if m.Entity == nil {
			continue
		}
		memberInactive := m.Inactive != nil && *m.Inactive
		start, end := (*time.Time)(nil), (*time.Time)(nil)
		if m.Period != nil {
			start, end = parsePeriodBounds(m.Period)
		}
		for _, r := range extractReferenceTargets(m.Entity) {
			if r.targetType == "" || r.targetID == "" {
				continue
			}
			out = append(out, membershipInRow{
				memberType: r.targetType, memberID: r.targetID,
				memberInactive: memberInactive, periodStart: start, periodEnd: end,
			})
		}
	}
	return out
}

func extractCareTeamMembers(body json.RawMessage) []membershipInRow {
	var ct struct {
		Status      string `json:"status"`
		Participant []struct {
			Period json.RawMessage `json:"period"`
			Member json.RawMessage `json:"member"`
		} `json:"participant"`
	}
	if json.Unmarshal(body, &ct) != nil {
		return nil
	}
	// Conservative: only index active CareTeams for `_in`.
	if !strings.EqualFold(ct.Status, "active") {
		return nil
	}

	var out []membershipInRow
	for _, p := range ct.Participant {
		if p.Member == nil {
			continue
		}
		start, end := (*time.Time)(nil), (*time.Time)(nil)
		if p.Period != nil {
			start, end = parsePeriodBounds(p.Period)
		}
		for _, r := range extractReferenceTargets(p.Member) {
			if r.targetType == "" || r.targetID == "" {
				continue
			}
			out = append(out, membershipInRow{memberType: r.targetType, memberID: r.targetID, periodStart: start, periodEnd: end})
		}
	}
	return out
}

func extractListMembers(body json.RawMessage) ([]membershipListRow, []membershipInRow) {
	var l struct {
		Status string `json:"status"`
		Entry  []struct {
			Deleted *bool           `json:"deleted"`
			Item    json.RawMessage `json:"item"`
		} `json:"entry"`
	}
	if json.Unmarshal(body, &l) != nil {
		return nil, nil
	}
	listIsCurrent := strings.EqualFold(l.Status, "current")

	var listRows []membershipListRow
	var inRows []membershipInRow
	for _, e := range l.Entry {
		if e.Deleted != nil && *e.Deleted {
			continue
		}
		if e.Item == nil {
			continue
		}
		for _, r := range extractReferenceTargets(e.Item) {
			if r.targetType == "" || r.targetID == "" {
				continue
			}
			listRows = append(listRows, membershipListRow{memberType: r.targetType, memberID: r.targetID})
			if listIsCurrent {
				inRows = append(inRows, membershipInRow{memberType: r.targetType, memberID: r.targetID})
			}
		}
	}
	return listRows, inRows
}

// RebuildMembershipsForResource refreshes the `search_membership_in`/
// `search_membership_list` tables that back the `:in`/`:list` reference
// modifiers whenever a Group, CareTeam, or List is written — these
// collection resources are the authoritative source, so every write
// clears and rebuilds rather than diffing (spec §4.4).
func RebuildMembershipsForResource(tx *sqlx.Tx, resourceType, resourceID string, body json.RawMessage, deleted bool) error {
	if resourceType != "Group" && resourceType != "List" && resourceType != "CareTeam" {
		return nil
	}

	if _, err := tx.Exec(`DELETE FROM search_membership_in WHERE collection_type = $1 AND collection_id = $2`, resourceType, resourceID); err != nil {
		return fmt.Errorf("clear membership_in: %w", err)
	}
	if resourceType == "List" {
		if _, err := tx.Exec(`DELETE FROM search_membership_list WHERE list_id = $1`, resourceID); err != nil {
			return fmt.Errorf("clear membership_list: %w", err)
		}
	}

	if deleted {
		return nil
	}

	var inRows []membershipInRow
	var listRows []membershipListRow
	switch resourceType {
	case "Group":
		inRows = extractGroupMembers(body)
	case "CareTeam":
		inRows = extractCareTeamMembers(body)
	case "List":
		listRows, inRows = extractListMembers(body)
	}

	if len(inRows) > 0 {
		memberTypes := make([]string, len(inRows))
		memberIDs := make([]string, len(inRows))
		memberInactives := make([]bool, len(inRows))
		periodStarts := make([]sql.NullTime, len(inRows))
		periodEnds := make([]sql.NullTime, len(inRows))
		for i, r := range inRows {
			memberTypes[i] = r.memberType
			memberIDs[i] = r.memberID
			memberInactives[i] = r.memberInactive
			if r.periodStart != nil {
				periodStarts[i] = sql.NullTime{Time: *r.periodStart, Valid: true}
			}
			if r.periodEnd != nil {
				periodEnds[i] = sql.NullTime{Time: *r.periodEnd, Valid: true}
			}
		}
		_, err := tx.Exec(`
			INSERT INTO search_membership_in (
				collection_type, collection_id, member_type, member_id,
				member_inactive, period_start, period_end
			)
			SELECT $1, $2, t.member_type, t.member_id, t.member_inactive, t.period_start, t.period_end
			FROM UNNEST($3::text[], $4::text[], $5::bool[], $6::timestamptz[], $7::timestamptz[])
				AS t(member_type, member_id, member_inactive, period_start, period_end)
			ON CONFLICT (collection_type, collection_id, member_type, member_id)
			DO UPDATE SET member_inactive = EXCLUDED.member_inactive,
			              period_start = EXCLUDED.period_start,
			              period_end = EXCLUDED.period_end
		`, resourceType, resourceID, pq.Array(memberTypes), pq.Array(memberIDs),
			pq.Array(memberInactives), pq.Array(periodStarts), pq.Array(periodEnds))
		if err != nil {
			return fmt.Errorf("insert membership_in: %w", err)
		}
	}

	if resourceType == "List" && len(listRows) > 0 {
		memberTypes := make([]string, len(listRows))
		memberIDs := make([]string, len(listRows))
		for i, r := range listRows {
			memberTypes[i] = r.memberType
			memberIDs[i] = r.memberID
		}
		_, err := tx.Exec(`
			INSERT INTO search_membership_list (list_id, member_type, member_id)
			SELECT $1, t.member_type, t.member_id
			FROM UNNEST($2::text[], $3::text[]) AS t(member_type, member_id)
			ON CONFLICT (list_id, member_type, member_id) DO NOTHING
		`, resourceID, pq.Array(memberTypes), pq.Array(memberIDs))
		if err != nil {
			return fmt.Errorf("insert membership_list: %w", err)
		}
	}

	return nil
}
