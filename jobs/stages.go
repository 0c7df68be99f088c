package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"ragbackend/chunking"
	"ragbackend/embedding"
	"ragbackend/metadata"
	"ragbackend/objectstore"
	"ragbackend/parsing"
	"ragbackend/ragerrors"
	"ragbackend/vectorindex"
)

// ParseStage reads the Document's stored bytes back out of the Object
// Store, dispatches them through the Parser, and replaces the
// Document's Elements (spec §4.2/§4.3).
func ParseStage(store *metadata.Store, objects *objectstore.Store, dispatcher *parsing.Dispatcher) Stage {
	return func(ctx context.Context, documentID uint64, report func(int)) error {
		doc, err := store.GetDocumentUnscoped(ctx, documentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ragerrors.New(ragerrors.NotFound, "jobs: document not found")
		}

		rc, err := objects.Get(ctx, doc.StorageURI)
		if err != nil {
			return err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return ragerrors.Wrap(ragerrors.StorageUnavailable, "jobs: read stored document", err)
		}
		report(30)

		elems, err := dispatcher.Parse(data, doc.Mime)
		if err != nil {
			return err
		}
		report(70)

		rows := make([]metadata.Element, len(elems))
		for i, el := range elems {
			var tableMD *string
			if el.TableMarkdown != "" {
				md := el.TableMarkdown
				tableMD = &md
			}
			rows[i] = metadata.Element{
				Ordinal:       el.Ordinal,
				Kind:          metadata.ElementKind(el.Kind),
				Page:          el.Page,
				Level:         el.Level,
				Text:          el.Text,
				TableMarkdown: tableMD,
			}
		}
		if err := store.UpsertElements(ctx, documentID, rows); err != nil {
			return err
		}
		report(100)
		return nil
	}
}

// ChunkStage loads the Document's Elements and replaces its Chunks
// (spec §4.2/§4.4).
func ChunkStage(store *metadata.Store, cfg chunking.Config) Stage {
	return func(ctx context.Context, documentID uint64, report func(int)) error {
		elems, err := store.GetElements(ctx, documentID)
		if err != nil {
			return err
		}
		report(20)

		pelems := make([]parsing.Element, len(elems))
		for i, el := range elems {
			tableMD := ""
			if el.TableMarkdown != nil {
				tableMD = *el.TableMarkdown
			}
			pelems[i] = parsing.Element{
				Ordinal:       el.Ordinal,
				Kind:          parsing.ElementKind(el.Kind),
				Page:          el.Page,
				Level:         el.Level,
				Text:          el.Text,
				TableMarkdown: tableMD,
			}
		}

		chunks := chunking.Split(pelems, cfg)
		report(70)

		rows := make([]metadata.Chunk, len(chunks))
		for i, c := range chunks {
			headerPath, err := json.Marshal(c.HeaderPath)
			if err != nil {
				return fmt.Errorf("jobs: marshal header path: %w", err)
			}
			rows[i] = metadata.Chunk{
				Ordinal:    c.Ordinal,
				Page:       c.Page,
				TokenCount: c.TokenCount,
				Text:       c.Text,
				HeaderPath: headerPath,
				IsTable:    c.IsTable,
			}
		}
		if err := store.ReplaceChunks(ctx, documentID, rows); err != nil {
			return err
		}
		report(100)
		return nil
	}
}

// EmbedStage loads the Document's Chunks, embeds their text, and
// upserts the vectors into both the Metadata Store (provenance) and the
// Vector Index (the query path) (spec §4.2/§4.5/§4.6).
func EmbedStage(store *metadata.Store, embedder embedding.Embedder, index *vectorindex.Index) Stage {
	return func(ctx context.Context, documentID uint64, report func(int)) error {
		tenantID, err := store.TenantForDocument(ctx, documentID)
		if err != nil {
			return err
		}

		chunks, err := store.GetChunksForDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			report(100)
			return nil
		}
		report(10)

		texts := make([]string, len(chunks))
		ids := make([]uint64, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
			ids[i] = c.ID
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		report(60)

		if err := store.UpsertEmbeddings(ctx, ids, vectors, embedder.Tag()); err != nil {
			return err
		}
		report(80)

		if err := index.Upsert(ctx, tenantID, ids, vectors); err != nil {
			return err
		}
		report(100)
		return nil
	}
}

