package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cherr "github.com/chronolab/chrono/pkg/errors"
	"github.com/chronolab/chrono/pkg/types"
)

const (
	runsCollection  = "research_runs"
	nodesCollection = "nodes"
)

// FirestoreStore persists runs in Firestore. Each run is one parent
// document plus one child document per timeline entry; Upsert replaces the
// child set inside a transaction so readers never observe a half-written
// timeline.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects to the project's Firestore database.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// runDoc is the parent document. Proposal and synthesis round-trip as JSON
// blobs; they are only ever read back whole.
type runDoc struct {
	Topic         string    `firestore:"topic"`
	ProposalJSON  string    `firestore:"proposal_json"`
	SynthesisJSON string    `firestore:"synthesis_json"`
	TotalNodes    int       `firestore:"total_nodes"`
	SourceCount   int       `firestore:"source_count"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

// entryDoc is one timeline entry child document. The index field preserves
// the stored ordering.
type entryDoc struct {
	Index        int        `firestore:"index"`
	ID           string     `firestore:"id"`
	Date         string     `firestore:"date"`
	Title        string     `firestore:"title"`
	Subtitle     string     `firestore:"subtitle"`
	Significance string     `firestore:"significance"`
	Description  string     `firestore:"description"`
	Sources      []string   `firestore:"sources"`
	Details      *detailDoc `firestore:"details"`
	IsGapEntry   bool       `firestore:"is_gap_node"`
	PhaseName    string     `firestore:"phase_name"`
}

type detailDoc struct {
	KeyFeatures []string `firestore:"key_features"`
	Impact      string   `firestore:"impact"`
	KeyPeople   []string `firestore:"key_people"`
	Context     string   `firestore:"context"`
	Sources     []string `firestore:"sources"`
}

// GetByTopic implements Store.
func (s *FirestoreStore) GetByTopic(ctx context.Context, topic string) (*types.StoredRun, error) {
	ref := s.client.Collection(runsCollection).Doc(TopicKey(topic))
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, cherr.Wrap(fmt.Errorf("failed to read run document: %w", err), cherr.ErrStoreFailed)
	}

	var doc runDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, cherr.Wrap(fmt.Errorf("failed to decode run document: %w", err), cherr.ErrStoreFailed)
	}

	run := &types.StoredRun{
		Topic:       doc.Topic,
		TotalNodes:  doc.TotalNodes,
		SourceCount: doc.SourceCount,
		UpdatedAt:   doc.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(doc.ProposalJSON), &run.Proposal); err != nil {
		return nil, cherr.Wrap(fmt.Errorf("failed to decode stored proposal: %w", err), cherr.ErrStoreFailed)
	}
	if doc.SynthesisJSON != "" {
		run.Synthesis = &types.SynthesisResult{}
		if err := json.Unmarshal([]byte(doc.SynthesisJSON), run.Synthesis); err != nil {
			return nil, cherr.Wrap(fmt.Errorf("failed to decode stored synthesis: %w", err), cherr.ErrStoreFailed)
		}
	}

	iter := ref.Collection(nodesCollection).OrderBy("index", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	for {
		nodeSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, cherr.Wrap(fmt.Errorf("failed to read entry documents: %w", err), cherr.ErrStoreFailed)
		}
		var node entryDoc
		if err := nodeSnap.DataTo(&node); err != nil {
			return nil, cherr.Wrap(fmt.Errorf("failed to decode entry document: %w", err), cherr.ErrStoreFailed)
		}
		run.Entries = append(run.Entries, fromEntryDoc(node))
	}
	return run, nil
}

// Upsert implements Store. The whole child set is replaced in one
// transaction.
func (s *FirestoreStore) Upsert(ctx context.Context, run *types.StoredRun) error {
	proposalJSON, err := json.Marshal(run.Proposal)
	if err != nil {
		return cherr.Wrap(fmt.Errorf("failed to encode proposal: %w", err), cherr.ErrStoreFailed)
	}
	synthesisJSON := ""
	if run.Synthesis != nil {
		data, err := json.Marshal(run.Synthesis)
		if err != nil {
			return cherr.Wrap(fmt.Errorf("failed to encode synthesis: %w", err), cherr.ErrStoreFailed)
		}
		synthesisJSON = string(data)
	}

	ref := s.client.Collection(runsCollection).Doc(TopicKey(run.Topic))
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Reads first: collect the existing child refs.
		var stale []*firestore.DocumentRef
		iter := tx.Documents(ref.Collection(nodesCollection))
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			stale = append(stale, snap.Ref)
		}

		for _, staleRef := range stale {
			if err := tx.Delete(staleRef); err != nil {
				return err
			}
		}
		for i, entry := range run.Entries {
			if err := tx.Set(ref.Collection(nodesCollection).Doc(entry.ID), toEntryDoc(i, entry)); err != nil {
				return err
			}
		}
		return tx.Set(ref, runDoc{
			Topic:         run.Topic,
			ProposalJSON:  string(proposalJSON),
			SynthesisJSON: synthesisJSON,
			TotalNodes:    run.TotalNodes,
			SourceCount:   run.SourceCount,
			UpdatedAt:     run.UpdatedAt,
		})
	})
	if err != nil {
		return cherr.Wrap(fmt.Errorf("failed to persist run: %w", err), cherr.ErrStoreFailed)
	}
	return nil
}

func toEntryDoc(index int, e types.TimelineEntry) entryDoc {
	doc := entryDoc{
		Index:        index,
		ID:           e.ID,
		Date:         e.Date,
		Title:        e.Title,
		Subtitle:     e.Subtitle,
		Significance: string(e.Significance),
		Description:  e.Description,
		Sources:      e.Sources,
		IsGapEntry:   e.IsGapEntry,
		PhaseName:    e.PhaseName,
	}
	if e.Details != nil {
		doc.Details = &detailDoc{
			KeyFeatures: e.Details.KeyFeatures,
			Impact:      e.Details.Impact,
			KeyPeople:   e.Details.KeyPeople,
			Context:     e.Details.Context,
			Sources:     e.Details.Sources,
		}
	}
	return doc
}

func fromEntryDoc(doc entryDoc) types.TimelineEntry {
	entry := types.TimelineEntry{
		ID:           doc.ID,
		Date:         doc.Date,
		Title:        doc.Title,
		Subtitle:     doc.Subtitle,
		Significance: types.Significance(doc.Significance),
		Description:  doc.Description,
		Sources:      doc.Sources,
		IsGapEntry:   doc.IsGapEntry,
		PhaseName:    doc.PhaseName,
	}
	if doc.Details != nil {
		entry.Details = &types.EntryDetail{
			KeyFeatures: doc.Details.KeyFeatures,
			Impact:      doc.Details.Impact,
			KeyPeople:   doc.Details.KeyPeople,
			Context:     doc.Details.Context,
			Sources:     doc.Details.Sources,
		}
	}
	return entry
}
