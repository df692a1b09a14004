package command

import (
	"fmt"

	"github.com/cleanslate/core/internal/domain"
)

// Audit projects tl's committed commands (indices 0..CurrentPosition)
// into audit entries, newest-first, with a synthetic "File loaded" entry
// at the tail. It never consults any persisted audit
// table; only the embedded row-level detail store (internal/auditstore)
// is consulted, and only for HasRowDetails and IsCapped.
func (x *Executor) Audit(tableID string) []domain.AuditEntry {
	tl := x.timelines.get(tableID)
	if tl == nil {
		return nil
	}
	var out []domain.AuditEntry
	for i := tl.CurrentPosition; i >= 0; i-- {
		out = append(out, x.projectEntry(tl, tl.Commands[i]))
	}
	out = append(out, domain.AuditEntry{
		ID:        "file-loaded-" + tableID,
		TableID:   tableID,
		TableName: tableID,
		Action:    "File loaded",
		EntryType: domain.AuditTypeA,
	})
	return out
}

func (x *Executor) projectEntry(tl *domain.Timeline, cmd *domain.Command) domain.AuditEntry {
	capped := x.audits != nil && x.audits.IsCapped(cmd.AuditEntryID)
	hasDetail := x.audits != nil && x.audits.Has(cmd.AuditEntryID)

	base := domain.AuditEntry{
		ID:            cmd.CommandID,
		AuditEntryID:  cmd.AuditEntryID,
		TableID:       cmd.TableID,
		TableName:     cmd.TableID,
		RowsAffected:  cmd.RowsAffected,
		Timestamp:     cmd.CreatedAt,
		HasRowDetails: hasDetail,
		IsCapped:      capped,
	}

	if cmd.Type == domain.CmdEditCell {
		base.EntryType = domain.AuditTypeB
		base.Action = "Cell edit"
		if len(cmd.CellChanges) == 1 {
			c := cmd.CellChanges[0]
			csid := c.CSID
			base.CSID = &csid
			base.Column = c.Column
			base.PreviousValue = c.Old
			base.NewValue = c.New
			base.Details = fmt.Sprintf("%s: %v → %v", c.Column, c.Old, c.New)
		}
		return base
	}

	base.EntryType = domain.AuditTypeA
	base.Action = string(cmd.Type)
	base.Details = x.detailsFor(cmd)
	return base
}

// detailsFor builds the type-A audit summary line. Commands with bulky
// row-level detail (merge:apply, standardize:apply) reference what that
// detail holds instead of a bare row count; HasRowDetails/AuditEntryID
// already tell a caller whether and where to fetch the full table.
func (x *Executor) detailsFor(cmd *domain.Command) string {
	switch cmd.Type {
	case domain.CmdMergeApply:
		if p, ok := cmd.Params.(MergeApplyParams); ok {
			merged := 0
			for _, pair := range p.Pairs {
				if pair.Status == domain.MatchMerged {
					merged++
				}
			}
			return fmt.Sprintf("Merged %d pair(s), %d row(s) removed", merged, cmd.RowsAffected)
		}
	case domain.CmdStandardizeApply:
		if p, ok := cmd.Params.(StandardizeApplyParams); ok {
			return fmt.Sprintf("Standardized %d value(s) in %q, %d row(s) changed", len(p.Mapping), p.Column, cmd.RowsAffected)
		}
	}
	return fmt.Sprintf("%s affected %d row(s)", cmd.Type, cmd.RowsAffected)
}
