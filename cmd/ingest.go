package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/model"
)

var ingestFile string

// tenderManifest is the JSON descriptor the ingest command reads. Scraping
// lives outside this binary; operators or the scraping service hand over a
// manifest per tender.
type tenderManifest struct {
	Reference    string `json:"reference"`
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Category     string `json:"category,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
	Documents    []struct {
		Filename string `json:"filename"`
		Type     string `json:"type,omitempty"`
		URL      string `json:"url"`
	} `json:"documents"`
}

// manifestSource adapts a manifest file to the portal source interface.
type manifestSource struct {
	manifest tenderManifest
}

func (s *manifestSource) DiscoverTender(_ context.Context, _ string) (*model.Tender, error) {
	m := s.manifest
	if m.Reference == "" {
		return nil, eris.New("ingest: manifest has no reference")
	}
	tender := &model.Tender{
		Reference:    m.Reference,
		Title:        m.Title,
		Organization: m.Organization,
		Category:     m.Category,
		Status:       model.TenderOpen,
		SourceURL:    m.SourceURL,
	}
	if m.Deadline != "" {
		ts, err := time.Parse("2006-01-02", m.Deadline)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: deadline %q", m.Deadline)
		}
		tender.Deadline = &ts
	}
	return tender, nil
}

func (s *manifestSource) ListTenderDocuments(_ context.Context, tenderID uuid.UUID, _ string) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(s.manifest.Documents))
	for _, d := range s.manifest.Documents {
		if d.URL == "" {
			return nil, eris.Errorf("ingest: document %q has no url", d.Filename)
		}
		docType := model.DocumentType(d.Type)
		if docType == "" {
			docType = model.DocOther
		}
		docs = append(docs, model.Document{
			TenderID:    tenderID,
			Filename:    d.Filename,
			Type:        docType,
			DownloadURL: d.URL,
		})
	}
	return docs, nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register a tender and its documents from a manifest file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return eris.Wrap(err, "read manifest")
		}
		var manifest tenderManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return eris.Wrap(err, "parse manifest")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tender, err := env.Pipeline.Ingest(ctx, &manifestSource{manifest: manifest}, manifest.Reference)
		if err != nil {
			return eris.Wrap(err, "ingest tender")
		}

		zap.L().Info("tender registered",
			zap.String("tender_id", tender.ID.String()),
			zap.String("reference", tender.Reference),
		)
		return printJSON(tender)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "tender manifest JSON file (required)")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
