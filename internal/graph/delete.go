package graph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/jsonl"
)

// SoftDeleteNodes moves the project's nodes named by ids to the deleted log.
//
// Under the live log lock it (1) snapshots the live log, aborting with
// ErrBackupFailed and no changes if that fails, (2) partitions live nodes
// into deleted and retained, (3) records the summaries whose segment covers
// a deleted node, (4) appends the deleted nodes with deletion metadata to
// the deleted log and (5) rebuilds the live log from the retained nodes with
// every reference to a deleted ID stripped from their edges.
//
// IDs that are not live in project are ignored.
func (s *Store) SoftDeleteNodes(ctx context.Context, ids []string, project, reason, deletedBy string) (*DeleteResult, error) {
	ctx, span := s.tracer.Start(ctx, "graph.soft_delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("project", project),
		attribute.Int("requested", len(ids)),
	)

	if project == "" {
		return nil, ErrProjectRequired
	}

	targets := toSet(ids)
	result := &DeleteResult{
		DeletedNodes:      []DeletedNode{},
		AffectedSummaries: []Node{},
	}

	err := s.log.WithLock(ctx, func(tx *jsonl.Tx[Node]) error {
		backup, err := s.backups.Save(ctx, tx.Path())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBackupFailed, err)
		}
		result.BackupPath = backup.Path

		nodes, err := tx.ReadAll()
		if err != nil {
			return err
		}

		now := s.now()
		deletedIDs := make(map[string]struct{})
		retained := make([]Node, 0, len(nodes))
		var deleted []DeletedNode
		for _, n := range nodes {
			if _, ok := targets[n.ID]; ok && n.Project == project {
				deletedIDs[n.ID] = struct{}{}
				deleted = append(deleted, DeletedNode{
					Node:          n,
					DeletedAt:     now,
					DeletedReason: reason,
					DeletedBy:     deletedBy,
				})
				continue
			}
			retained = append(retained, n)
		}
		if len(deleted) == 0 {
			return nil
		}

		var affected []Node
		for _, n := range retained {
			if n.Project == project && n.Role == RoleSummary && intersects(n.SummarizedSegment, deletedIDs) {
				affected = append(affected, n)
			}
		}

		// Side effects outside the live log must not be repeated by a retry.
		if err := s.deleted.Append(context.WithoutCancel(ctx), deleted...); err != nil {
			return jsonl.Permanent(fmt.Errorf("recording deleted nodes: %w", err))
		}

		for i := range retained {
			retained[i].Parents = without(retained[i].Parents, deletedIDs)
			retained[i].Children = without(retained[i].Children, deletedIDs)
		}
		if err := tx.Rebuild(retained); err != nil {
			return jsonl.Permanent(fmt.Errorf("rebuilding live log: %w", err))
		}

		result.DeletedNodes = deleted
		if affected != nil {
			result.AffectedSummaries = affected
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrBackupFailed) {
			s.logger.Error("soft delete aborted", zap.Error(err))
		}
		return nil, err
	}

	if n := len(result.DeletedNodes); n > 0 {
		if s.deletedCounter != nil {
			s.deletedCounter.Add(ctx, int64(n))
		}
		s.logger.Info("nodes soft-deleted",
			zap.String("project", project),
			zap.Int("count", n),
			zap.Int("affected_summaries", len(result.AffectedSummaries)),
			zap.String("backup", result.BackupPath),
		)
	}
	return result, nil
}

// Restore replaces the live log with the content of a backup. The current
// log is itself backed up first. ref is a backup ID or path.
func (s *Store) Restore(ctx context.Context, ref string) (*RestoreResult, error) {
	ctx, span := s.tracer.Start(ctx, "graph.restore")
	defer span.End()

	cp, err := s.backups.Get(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	source, err := jsonl.New(cp.Path, DecodeNode, jsonl.Options{Name: "knowledge_graph_backup", Logger: s.logger})
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{RestoredFrom: cp.Path}
	err = s.log.WithLock(ctx, func(tx *jsonl.Tx[Node]) error {
		nodes, err := source.ReadAll(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		backup, err := s.backups.Save(ctx, tx.Path())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBackupFailed, err)
		}
		result.BackupPath = backup.Path
		result.Nodes = len(nodes)
		return tx.Rebuild(nodes)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Info("graph restored",
		zap.String("from", cp.Path),
		zap.Int("nodes", result.Nodes),
		zap.String("backup", result.BackupPath),
	)
	return result, nil
}

func without(ids []string, drop map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
