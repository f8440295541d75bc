package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/canonical"
	"github.com/Harshitk-cp/selfgraph/internal/citation"
	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/metrics"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize   = 50
	CoOccurrenceWindow = 5
)

var ErrImportEmpty = errors.New("import has no fragments, citations or chunks")

// Chunk is a raw transcript chunk scanned for URLs.
type Chunk struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

type ImportRequest struct {
	// ImportID makes the import resumable: batches already committed under
	// the same id are not processed again.
	ImportID  string                     `json:"import_id,omitempty"`
	Fragments []domain.CandidateFragment `json:"fragments"`
	Citations []domain.CitationReference `json:"citations,omitempty"`
	Chunks    []Chunk                    `json:"chunks,omitempty"`
}

type ReconcileResult struct {
	ImportID              string `json:"import_id,omitempty"`
	FragmentsProcessed    int    `json:"fragments_processed"`
	FragmentsSkipped      int    `json:"fragments_skipped"`
	CitationsSkipped      int    `json:"citations_skipped"`
	BatchesCommitted      int    `json:"batches_committed"`
	BatchesSkipped        int    `json:"batches_skipped"`
	EntitiesCreated       int    `json:"entities_created"`
	EntitiesUpdated       int    `json:"entities_updated"`
	Merges                int    `json:"merges"`
	SuggestionsQueued     int    `json:"suggestions_queued"`
	Conflicts             int    `json:"conflicts"`
	CitationsCreated      int    `json:"citations_created"`
	CitationsDeduplicated int    `json:"citations_deduplicated"`
}

// batchOutcome carries what one batch produced, including the side effects
// that run only after its commit.
type batchOutcome struct {
	created      int
	updated      int
	merges       int
	citesCreated int
	citesDeduped int
	suggestions  [][2]uuid.UUID
	promoted     [][2]uuid.UUID
	conflicts    []uuid.UUID
}

func (o *batchOutcome) suggest(a, b uuid.UUID) {
	pair := [2]uuid.UUID{a, b}
	if !slices.Contains(o.suggestions, pair) {
		o.suggestions = append(o.suggestions, pair)
	}
}

type occurrence struct {
	entityID     uuid.UUID
	messageIndex int
	placeholder  bool
}

// occurrenceIndex records, per conversation, where resolved entities were
// mentioned during this run.
type occurrenceIndex map[string][]occurrence

func (idx occurrenceIndex) add(conversationID string, o occurrence) {
	idx[conversationID] = append(idx[conversationID], o)
}

func (idx occurrenceIndex) near(conversationID string, messageIndex int, placeholder bool) []occurrence {
	var out []occurrence
	for _, o := range idx[conversationID] {
		if o.placeholder != placeholder {
			continue
		}
		d := o.messageIndex - messageIndex
		if d < 0 {
			d = -d
		}
		if d <= CoOccurrenceWindow {
			out = append(out, o)
		}
	}
	return out
}

type ResolverService struct {
	entities  domain.EntityStore
	citations domain.CitationStore
	decisions domain.MergeDecisionStore
	committer domain.BatchCommitter
	side      domain.SideStore
	belief    *BeliefService
	writer    domain.WriteLocker
	logger    *zap.Logger
	now       func() time.Time

	BatchSize int
}

func NewResolverService(
	es domain.EntityStore,
	cs domain.CitationStore,
	ds domain.MergeDecisionStore,
	committer domain.BatchCommitter,
	side domain.SideStore,
	belief *BeliefService,
	writer domain.WriteLocker,
	logger *zap.Logger,
) *ResolverService {
	return &ResolverService{
		entities:  es,
		citations: cs,
		decisions: ds,
		committer: committer,
		side:      side,
		belief:    belief,
		writer:    writer,
		logger:    logger,
		now:       time.Now,
		BatchSize: DefaultBatchSize,
	}
}

func (s *ResolverService) SetClock(now func() time.Time) {
	s.now = now
}

// Reconcile resolves an import batch by batch. Each batch is committed
// before the next one starts; a failed commit stops the import and leaves
// earlier batches in place. The writer lock is held per batch, so other
// writers, such as a human resolving a suggestion, run between batches.
func (s *ResolverService) Reconcile(ctx context.Context, req ImportRequest) (*ReconcileResult, error) {
	if len(req.Fragments) == 0 && len(req.Citations) == 0 && len(req.Chunks) == 0 {
		return nil, ErrImportEmpty
	}

	now := s.now()
	result := &ReconcileResult{ImportID: req.ImportID}

	fragments := s.validFragments(req.Fragments, result)
	sortFragments(fragments)
	cites := s.collectCitations(req, fragments, now, result)

	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := splitBatches(fragments, size)
	if len(batches) == 0 && len(cites) > 0 {
		batches = [][]domain.CandidateFragment{nil}
	}
	assigned, byFragment := assignCitations(cites, batches)

	occ := make(occurrenceIndex)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		out, queued, err := s.runBatch(ctx, req.ImportID, i, batch, assigned[i], byFragment, occ, now)
		if err != nil {
			s.logger.Error("batch reconciliation failed",
				zap.String("import_id", req.ImportID),
				zap.Int("batch", i),
				zap.Error(err),
			)
			return result, fmt.Errorf("batch %d: %w", i, err)
		}
		if out == nil {
			result.BatchesSkipped++
			continue
		}

		result.BatchesCommitted++
		result.FragmentsProcessed += len(batch)
		result.EntitiesCreated += out.created
		result.EntitiesUpdated += out.updated
		result.Merges += out.merges
		result.CitationsCreated += out.citesCreated
		result.CitationsDeduplicated += out.citesDeduped
		result.Conflicts += len(out.conflicts)
		result.SuggestionsQueued += queued
	}

	s.logger.Info("import reconciled",
		zap.String("import_id", req.ImportID),
		zap.Int("fragments", result.FragmentsProcessed),
		zap.Int("skipped", result.FragmentsSkipped),
		zap.Int("created", result.EntitiesCreated),
		zap.Int("merges", result.Merges),
	)
	return result, nil
}

func (s *ResolverService) validFragments(in []domain.CandidateFragment, result *ReconcileResult) []domain.CandidateFragment {
	out := make([]domain.CandidateFragment, 0, len(in))
	seen := make(map[uuid.UUID]bool, len(in))
	for _, f := range in {
		if err := f.Validate(); err != nil {
			s.logger.Warn("skipping malformed fragment",
				zap.String("chunk_id", f.SourceChunkID),
				zap.String("fragment_id", f.ID.String()),
				zap.Error(err),
			)
			metrics.FragmentsMalformed.Inc()
			result.FragmentsSkipped++
			continue
		}
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		f.Text = strings.TrimSpace(f.Text)
		out = append(out, f)
	}
	return out
}

// sortFragments orders fragments by conversation time, then position.
func sortFragments(fs []domain.CandidateFragment) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if !a.ConversationTimestamp.Equal(b.ConversationTimestamp) {
			return a.ConversationTimestamp.Before(b.ConversationTimestamp)
		}
		if a.SourceConversationID != b.SourceConversationID {
			return a.SourceConversationID < b.SourceConversationID
		}
		return a.MessageIndex < b.MessageIndex
	})
}

func splitBatches(fs []domain.CandidateFragment, size int) [][]domain.CandidateFragment {
	var out [][]domain.CandidateFragment
	for start := 0; start < len(fs); start += size {
		out = append(out, fs[start:min(start+size, len(fs))])
	}
	return out
}

// collectCitations validates supplied citations and extracts more from chunks.
func (s *ResolverService) collectCitations(req ImportRequest, fragments []domain.CandidateFragment, now time.Time, result *ReconcileResult) []domain.CitationReference {
	var out []domain.CitationReference
	for _, c := range req.Citations {
		host, err := citation.ExtractDomain(c.URL)
		if err != nil || host == "" || c.CitedInConversationID == "" {
			s.logger.Warn("skipping malformed citation",
				zap.String("url", c.URL),
				zap.String("conversation_id", c.CitedInConversationID),
			)
			result.CitationsSkipped++
			continue
		}
		c.Domain = host
		if c.FirstCitedDate.IsZero() {
			c.FirstCitedDate = now
		}
		out = append(out, c)
	}

	byChunk := make(map[string][]domain.CandidateFragment)
	for _, f := range fragments {
		byChunk[f.SourceChunkID] = append(byChunk[f.SourceChunkID], f)
	}
	for _, ch := range req.Chunks {
		if ch.ConversationID == "" {
			s.logger.Warn("skipping chunk without conversation", zap.String("chunk_id", ch.ID))
			continue
		}
		ts := ch.Timestamp
		if ts.IsZero() {
			ts = now
		}
		out = append(out, citation.Extract(ch.Text, byChunk[ch.ID], ch.ConversationID, ts)...)
	}
	return out
}

// assignCitations places each citation in the first batch holding one of
// its related fragments, or the first batch when it relates to none. It
// also indexes citation URLs by related fragment.
func assignCitations(cites []domain.CitationReference, batches [][]domain.CandidateFragment) (map[int][]domain.CitationReference, map[uuid.UUID][]string) {
	batchOf := make(map[uuid.UUID]int)
	for i, b := range batches {
		for _, f := range b {
			batchOf[f.ID] = i
		}
	}

	assigned := make(map[int][]domain.CitationReference)
	byFragment := make(map[uuid.UUID][]string)
	for _, c := range cites {
		target := 0
		found := false
		for _, fid := range c.RelatedFragmentIDs {
			if !slices.Contains(byFragment[fid], c.URL) {
				byFragment[fid] = append(byFragment[fid], c.URL)
			}
			if i, ok := batchOf[fid]; ok && (!found || i < target) {
				target, found = i, true
			}
		}
		assigned[target] = append(assigned[target], c)
	}
	return assigned, byFragment
}

// runBatch reconciles one batch under the writer lock. The checkpoint is
// read under the lock too, so a batch that a concurrent run of the same
// import already committed is replayed rather than applied twice. A nil
// outcome means the batch was skipped.
func (s *ResolverService) runBatch(
	ctx context.Context,
	importID string,
	index int,
	batch []domain.CandidateFragment,
	cites []domain.CitationReference,
	byFragment map[uuid.UUID][]string,
	occ occurrenceIndex,
	now time.Time,
) (*batchOutcome, int, error) {
	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	if importID != "" {
		last, err := s.committer.LastCommittedBatch(ctx, importID)
		if err != nil {
			return nil, 0, fmt.Errorf("read checkpoint: %w", err)
		}
		if index <= last {
			if err := s.replayOccurrences(ctx, batch, occ); err != nil {
				return nil, 0, fmt.Errorf("replay: %w", err)
			}
			return nil, 0, nil
		}
	}

	out, err := s.reconcileBatch(ctx, importID, index, batch, cites, byFragment, occ, now)
	if err != nil {
		return nil, 0, err
	}
	return out, s.afterCommit(ctx, out, now), nil
}

func (s *ResolverService) reconcileBatch(
	ctx context.Context,
	importID string,
	index int,
	batch []domain.CandidateFragment,
	cites []domain.CitationReference,
	byFragment map[uuid.UUID][]string,
	occ occurrenceIndex,
	now time.Time,
) (*batchOutcome, error) {
	ws := newWorkset(s.entities, s.citations, s.decisions)
	out := &batchOutcome{}

	texts := make([]string, 0, len(batch))
	keys := make([]string, 0, len(batch))
	for _, f := range batch {
		texts = append(texts, f.Text)
		keys = append(keys, canonical.Build(f.Category, "", f.Text))
	}
	if len(batch) > 0 {
		found, err := s.entities.FindCandidates(ctx, texts, keys)
		if err != nil {
			return nil, fmt.Errorf("find candidates: %w", err)
		}
		ws.addAll(found)
	}

	if err := s.recordCitations(ctx, ws, batch, cites, byFragment, out); err != nil {
		return nil, err
	}

	var named, generic []domain.CandidateFragment
	for _, f := range batch {
		if _, ok := domain.ParseGenericReference(f.Text); ok {
			generic = append(generic, f)
		} else {
			named = append(named, f)
		}
	}

	resolved := make(map[uuid.UUID]uuid.UUID, len(batch))
	for _, f := range named {
		e, err := s.resolveNamed(ctx, ws, f, occ, now, out)
		if err != nil {
			return nil, err
		}
		resolved[f.ID] = e.ID
	}
	for _, f := range generic {
		e, err := s.resolveGeneric(ctx, ws, f, occ, now, out)
		if err != nil {
			return nil, err
		}
		resolved[f.ID] = e.ID
	}

	if err := s.linkCitations(ctx, ws, batch, resolved, byFragment); err != nil {
		return nil, err
	}

	if err := s.mature(ctx, ws, now, out); err != nil {
		return nil, err
	}

	for _, id := range ws.order {
		if e := ws.entities[id]; ws.touched[id] && !e.Absorbed() {
			s.belief.Recompute(e, now)
		}
	}

	b := ws.batch(importID, index)
	out.created = ws.created
	out.updated = len(b.Entities) - ws.created

	timer := prometheus.NewTimer(metrics.BatchCommitDuration)
	err := s.committer.CommitBatch(ctx, b)
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("batch committed",
		zap.String("import_id", importID),
		zap.Int("batch", index),
		zap.Int("fragments", len(batch)),
		zap.Int("entities", len(b.Entities)),
	)
	return out, nil
}

// recordCitations deduplicates this batch's citations by URL against the
// workset and durable storage, and loads citations related to the batch's
// fragments so they can be linked.
func (s *ResolverService) recordCitations(
	ctx context.Context,
	ws *workset,
	batch []domain.CandidateFragment,
	cites []domain.CitationReference,
	byFragment map[uuid.UUID][]string,
	out *batchOutcome,
) error {
	var urls []string
	for _, c := range cites {
		if !slices.Contains(urls, c.URL) {
			urls = append(urls, c.URL)
		}
	}
	for _, f := range batch {
		for _, u := range byFragment[f.ID] {
			if !slices.Contains(urls, u) {
				urls = append(urls, u)
			}
		}
	}
	if len(urls) == 0 {
		return nil
	}

	existing, err := s.citations.GetByURLs(ctx, urls)
	if err != nil {
		return fmt.Errorf("load citations: %w", err)
	}
	for i := range existing {
		ws.addCitation(&existing[i])
	}

	for _, c := range cites {
		if cur := ws.citationByURL(c.URL); cur != nil {
			changed := cur.RecordConversation(c.CitedInConversationID)
			for _, fid := range c.RelatedFragmentIDs {
				changed = cur.RelateFragment(fid) || changed
			}
			if c.FirstCitedDate.Before(cur.FirstCitedDate) {
				cur.FirstCitedDate = c.FirstCitedDate
				cur.CitedInConversationID = c.CitedInConversationID
				changed = true
			}
			if score := citation.ProximityScore(len(cur.RelatedFragmentIDs)); score > cur.ProximityScore {
				cur.ProximityScore = score
				changed = true
			}
			if changed {
				ws.dirtyCites[cur.ID] = true
				out.citesDeduped++
				metrics.CitationsRecorded.WithLabelValues("incremented").Inc()
			} else {
				metrics.CitationsRecorded.WithLabelValues("unchanged").Inc()
			}
			continue
		}

		nc := domain.CitationReference{
			ID:                    c.ID,
			URL:                   c.URL,
			Domain:                c.Domain,
			CitedInConversationID: c.CitedInConversationID,
			ProximityScore:        c.ProximityScore,
			FirstCitedDate:        c.FirstCitedDate,
		}
		if nc.ID == uuid.Nil {
			nc.ID = uuid.New()
		}
		nc.RecordConversation(c.CitedInConversationID)
		for _, fid := range c.RelatedFragmentIDs {
			nc.RelateFragment(fid)
		}
		if nc.ProximityScore == 0 {
			nc.ProximityScore = citation.ProximityScore(len(nc.RelatedFragmentIDs))
		}
		ws.addCitation(&nc)
		ws.dirtyCites[nc.ID] = true
		out.citesCreated++
		metrics.CitationsRecorded.WithLabelValues("created").Inc()
	}
	return nil
}

// linkCitations ties citations to the entities their related fragments
// resolved to and applies the corroboration boost once per pair.
func (s *ResolverService) linkCitations(ctx context.Context, ws *workset, batch []domain.CandidateFragment, resolved map[uuid.UUID]uuid.UUID, byFragment map[uuid.UUID][]string) error {
	for _, f := range batch {
		for _, u := range byFragment[f.ID] {
			c := ws.citationByURL(u)
			if c == nil {
				continue
			}
			e, err := ws.entity(ctx, resolved[f.ID])
			if err != nil {
				return fmt.Errorf("link citation %s: %w", u, err)
			}
			if c.RelateEntity(e.ID) {
				ws.dirtyCites[c.ID] = true
			}
			if e.LinkCitation(c.ID) {
				s.belief.Corroborate(e, c)
				ws.touch(e)
			}
		}
	}
	return nil
}

func (s *ResolverService) resolveNamed(ctx context.Context, ws *workset, f domain.CandidateFragment, occ occurrenceIndex, now time.Time, out *batchOutcome) (*domain.CanonicalEntity, error) {
	key := canonical.Build(f.Category, "", f.Text)
	e, conflicted := matchTierA(ws, f, key)
	path := string(domain.TierA)
	if e == nil {
		if conflicted != nil {
			s.flagConflict(ws, conflicted, f, out)
		}
		e = ws.create(f, key, false, now)
		path = "created"
	} else if !e.MatchesText(f.Text) {
		e.AddAlias(f.Text)
		ws.markDirty(e)
	}
	s.support(ws, e, f)
	metrics.FragmentsResolved.WithLabelValues(path).Inc()

	for _, o := range occ.near(f.SourceConversationID, f.MessageIndex, true) {
		p, err := ws.entity(ctx, o.entityID)
		if err != nil {
			return nil, err
		}
		if err := s.observeCoOccurrence(ctx, ws, p, e, f); err != nil {
			return nil, err
		}
	}
	occ.add(f.SourceConversationID, occurrence{entityID: e.ID, messageIndex: f.MessageIndex})
	return e, nil
}

// resolveGeneric handles a fragment whose text is a generic reference. It
// resolves through an alias when one exists and otherwise lands on a
// placeholder entity that collects co-occurrence evidence.
func (s *ResolverService) resolveGeneric(ctx context.Context, ws *workset, f domain.CandidateFragment, occ occurrenceIndex, now time.Time, out *batchOutcome) (*domain.CanonicalEntity, error) {
	e, conflicted := matchTierA(ws, f, "")
	if e != nil {
		s.support(ws, e, f)
		metrics.FragmentsResolved.WithLabelValues(string(domain.TierA)).Inc()
		occ.add(f.SourceConversationID, occurrence{entityID: e.ID, messageIndex: f.MessageIndex})
		return e, nil
	}
	if conflicted != nil {
		s.flagConflict(ws, conflicted, f, out)
	}

	phrase, _ := domain.ParseGenericReference(f.Text)
	key := canonical.Build(f.Category, "", string(phrase))
	var p *domain.CanonicalEntity
	for _, cand := range ws.live() {
		if cand.IsPlaceholder && cand.CanonicalKey == key {
			p = cand
			break
		}
	}
	if p == nil {
		p = ws.create(f, key, true, now)
		p.CanonicalText = string(phrase)
	}
	s.support(ws, p, f)
	metrics.FragmentsResolved.WithLabelValues("placeholder").Inc()

	for _, o := range occ.near(f.SourceConversationID, f.MessageIndex, false) {
		cand, err := ws.entity(ctx, o.entityID)
		if err != nil {
			return nil, err
		}
		if err := s.observeCoOccurrence(ctx, ws, p, cand, f); err != nil {
			return nil, err
		}
	}
	occ.add(f.SourceConversationID, occurrence{entityID: p.ID, messageIndex: f.MessageIndex, placeholder: true})
	return p, nil
}

// matchTierA finds the best entity whose text, alias or key equals the
// fragment's. Incompatible matches are never returned; when the only
// matches are incompatible and one came in through a merged alias, that
// entity is returned as conflicted.
func matchTierA(ws *workset, f domain.CandidateFragment, key string) (match, conflicted *domain.CanonicalEntity) {
	for _, e := range ws.live() {
		if e.IsPlaceholder {
			continue
		}
		viaText := e.MatchesText(f.Text)
		viaKey := key != "" && e.CanonicalKey == key
		if !viaText && !viaKey {
			continue
		}
		if !domain.MergeCompatible(e.Category, f.Category) {
			if viaText && e.HasAlias(f.Text) && hasMerged(e) {
				conflicted = e
			}
			continue
		}
		if match == nil || betterMatch(e, match, f) {
			match = e
		}
	}
	if match != nil {
		conflicted = nil
	}
	return match, conflicted
}

func betterMatch(a, b *domain.CanonicalEntity, f domain.CandidateFragment) bool {
	if ac, bc := a.Category == f.Category, b.Category == f.Category; ac != bc {
		return ac
	}
	if at, bt := strings.EqualFold(a.CanonicalText, f.Text), strings.EqualFold(b.CanonicalText, f.Text); at != bt {
		return at
	}
	if a.Belief.SupportCount != b.Belief.SupportCount {
		return a.Belief.SupportCount > b.Belief.SupportCount
	}
	return a.FirstSeen.Before(b.FirstSeen)
}

func hasMerged(e *domain.CanonicalEntity) bool {
	for _, d := range e.MergeHistory {
		if d.Decision == domain.DecisionMerged {
			return true
		}
	}
	return false
}

// support attaches the fragment to the entity. A fragment already
// supporting the entity changes nothing.
func (s *ResolverService) support(ws *workset, e *domain.CanonicalEntity, f domain.CandidateFragment) {
	if !e.AddSupport(f.ID) {
		return
	}
	s.belief.Support(e, f)
	if f.ConversationTimestamp.After(e.LastSeen) {
		e.LastSeen = f.ConversationTimestamp
	}
	if f.ConversationTimestamp.Before(e.FirstSeen) {
		e.FirstSeen = f.ConversationTimestamp
	}
	ws.touch(e)
}

func (s *ResolverService) flagConflict(ws *workset, e *domain.CanonicalEntity, f domain.CandidateFragment, out *batchOutcome) {
	if !e.HasMergeConflict {
		e.HasMergeConflict = true
		ws.markDirty(e)
		metrics.MergeConflicts.Inc()
	}
	if !slices.Contains(out.conflicts, e.ID) {
		out.conflicts = append(out.conflicts, e.ID)
	}
	s.logger.Warn("fragment contradicts a past merge",
		zap.String("entity_id", e.ID.String()),
		zap.String("fragment_id", f.ID.String()),
		zap.String("entity_category", string(e.Category)),
		zap.String("fragment_category", string(f.Category)),
	)
}

// observeCoOccurrence counts one conversation in which placeholder p and
// named entity cand were mentioned close together.
func (s *ResolverService) observeCoOccurrence(ctx context.Context, ws *workset, p, cand *domain.CanonicalEntity, f domain.CandidateFragment) error {
	if !p.IsPlaceholder || cand.IsPlaceholder || p.ID == cand.ID {
		return nil
	}
	if !domain.MergeCompatible(p.Category, cand.Category) {
		metrics.MergesRefused.Inc()
		return nil
	}
	d, err := ws.decided(ctx, p.ID, cand.ID)
	if err != nil {
		return fmt.Errorf("read decision: %w", err)
	}
	if d != nil && d.Decision == domain.DecisionKeptSeparate {
		return nil
	}

	pending := cand.PendingAliasFor(p.ID)
	if pending == nil {
		cand.PendingAliases = append(cand.PendingAliases, domain.PendingAliasCandidate{
			FragmentID:        f.ID,
			Phrase:            p.CanonicalText,
			PlaceholderID:     p.ID,
			CandidateEntityID: cand.ID,
			FirstSeen:         f.ConversationTimestamp,
		})
		pending = &cand.PendingAliases[len(cand.PendingAliases)-1]
	}
	if slices.Contains(pending.ConversationIDs, f.SourceConversationID) {
		return nil
	}
	pending.ConversationIDs = append(pending.ConversationIDs, f.SourceConversationID)
	pending.CoOccurrenceCount = len(pending.ConversationIDs)
	ws.markDirty(cand)
	return nil
}

// mature promotes pending aliases that reached the Tier B co-occurrence threshold, queues
// single sightings for review and drops candidates that no longer apply.
func (s *ResolverService) mature(ctx context.Context, ws *workset, now time.Time, out *batchOutcome) error {
	for _, cand := range ws.live() {
		if cand.IsPlaceholder || cand.Absorbed() || len(cand.PendingAliases) == 0 {
			continue
		}
		for _, p := range slices.Clone(cand.PendingAliases) {
			ph, err := ws.entity(ctx, p.PlaceholderID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("load placeholder %s: %w", p.PlaceholderID, err)
			}
			if err != nil || ph.ID != p.PlaceholderID || !ph.IsPlaceholder {
				cand.RemovePendingAlias(p.PlaceholderID)
				ws.markDirty(cand)
				continue
			}

			d, err := ws.decided(ctx, ph.ID, cand.ID)
			if err != nil {
				return fmt.Errorf("read decision: %w", err)
			}
			if d != nil && d.Decision == domain.DecisionKeptSeparate {
				cand.RemovePendingAlias(ph.ID)
				ws.markDirty(cand)
				continue
			}

			switch {
			case p.CoOccurrenceCount >= domain.GetTierBehavior(domain.TierB).MinCoOccurrences:
				if err := ws.merge(ctx, cand, ph, domain.TierB, false, now); err != nil {
					if errors.Is(err, ErrMergeRefused) {
						cand.RemovePendingAlias(ph.ID)
						ws.markDirty(cand)
						continue
					}
					return err
				}
				out.merges++
				out.promoted = append(out.promoted, [2]uuid.UUID{ph.ID, cand.ID})
				s.logger.Info("promoted generic reference to alias",
					zap.String("phrase", p.Phrase),
					zap.String("entity_id", cand.ID.String()),
					zap.Int("co_occurrences", p.CoOccurrenceCount),
				)
			case p.CoOccurrenceCount == 1 && ph.Category == cand.Category:
				out.suggest(ph.ID, cand.ID)
			}
		}
	}
	return nil
}

// afterCommit runs side-store updates for a committed batch. Failures are
// logged; the batch itself is already durable.
func (s *ResolverService) afterCommit(ctx context.Context, out *batchOutcome, now time.Time) int {
	queued := 0
	for _, pair := range out.suggestions {
		ok, err := s.side.Enqueue(ctx, domain.MergeSuggestion{
			EntityAID:   pair[0],
			EntityBID:   pair[1],
			SuggestedAt: now,
		})
		if err != nil {
			s.logger.Warn("failed to queue merge suggestion", zap.String("pair", domain.PairKey(pair[0], pair[1])), zap.Error(err))
			continue
		}
		if ok {
			queued++
		}
	}
	for _, pair := range out.promoted {
		if err := s.side.Remove(ctx, pair[0], pair[1]); err != nil {
			s.logger.Warn("failed to drop promoted suggestion", zap.String("pair", domain.PairKey(pair[0], pair[1])), zap.Error(err))
		}
	}
	for _, id := range out.conflicts {
		if err := s.side.PushConflict(ctx, id); err != nil {
			s.logger.Warn("failed to queue conflict for review", zap.String("entity_id", id.String()), zap.Error(err))
		}
	}
	return queued
}

// replayOccurrences rebuilds the co-occurrence index for a batch that was
// committed by an earlier run, without writing anything.
func (s *ResolverService) replayOccurrences(ctx context.Context, batch []domain.CandidateFragment, occ occurrenceIndex) error {
	if len(batch) == 0 {
		return nil
	}
	texts := make([]string, 0, len(batch))
	for _, f := range batch {
		texts = append(texts, f.Text)
	}
	found, err := s.entities.FindCandidates(ctx, texts, nil)
	if err != nil {
		return err
	}
	for _, f := range batch {
		for i := range found {
			e := &found[i]
			if e.HasSupport(f.ID) {
				occ.add(f.SourceConversationID, occurrence{
					entityID:     e.ID,
					messageIndex: f.MessageIndex,
					placeholder:  e.IsPlaceholder,
				})
				break
			}
		}
	}
	return nil
}
