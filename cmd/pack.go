package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamusis/memview/internal/bundle"
	"github.com/kamusis/memview/internal/embeddings"
	"github.com/kamusis/memview/internal/engine/flat"
	"github.com/spf13/cobra"
)

// embedBatch is the number of texts sent per embeddings request.
const embedBatch = 64

var (
	flagPackOut       string
	flagPackMetric    string
	flagPackCompress  string
	flagPackNormalize bool
	flagPackEmbed     bool
)

var packCmd = &cobra.Command{
	Use:   "pack <records.jsonl>",
	Short: "Build a bundle from a JSON-lines file of records",
	Long: `Read records ({"id", "vector"|"embedding", "metadata"}) one JSON value per
line, build a flat index over their vectors and write a bundle.

With --embed, records without a vector are embedded from metadata.content
using the configured embeddings provider.

Example:
  memview pack memories.jsonl -o memories.bundle.json --compress zstd`,
	Args: cobra.ExactArgs(1),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVarP(&flagPackOut, "output", "o", "", "Bundle path (default: <input>.bundle.json)")
	packCmd.Flags().StringVar(&flagPackMetric, "metric", "cosine", "Distance metric: cosine, l2 or ip")
	packCmd.Flags().StringVar(&flagPackCompress, "compress", "none", "Index body compression: none, zstd or lz4")
	packCmd.Flags().BoolVar(&flagPackNormalize, "normalize", false, "Scale every vector to unit length")
	packCmd.Flags().BoolVar(&flagPackEmbed, "embed", false, "Embed records that have no vector (needs MEMVIEW_EMBEDDINGS_*)")
	rootCmd.AddCommand(packCmd)
}

type packOptions struct {
	metric      flat.Metric
	compression flat.Compression
	normalize   bool
	embedder    embeddings.Provider
}

func runPack(cmd *cobra.Command, args []string) error {
	in := args[0]
	out := flagPackOut
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ".bundle.json"
	}

	opt := packOptions{normalize: flagPackNormalize}
	var err error
	if opt.metric, err = flat.ParseMetric(flagPackMetric); err != nil {
		return err
	}
	if opt.compression, err = flat.ParseCompression(flagPackCompress); err != nil {
		return err
	}
	if flagPackEmbed {
		embCfg, err := embeddings.LoadConfig()
		if err != nil {
			return err
		}
		if opt.embedder, err = embeddings.NewFromConfig(embCfg); err != nil {
			return err
		}
	}

	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", in, err)
	}
	defer f.Close()
	records, err := readRecords(f)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	b, err := packRecords(cmd.Context(), records, opt)
	if err != nil {
		return err
	}
	if err := bundle.Write(out, b); err != nil {
		return err
	}
	printOK("", fmt.Sprintf("bundle written: %s", out))
	printInfo("", fmt.Sprintf("%d record(s), dimension %d, metric %s, compression %s",
		len(b.Records), len(b.Records[0].Vector), opt.metric, opt.compression))
	return nil
}

// readRecords decodes a stream of JSON record values (one per line by
// convention; any whitespace separation works).
func readRecords(r io.Reader) ([]bundle.Record, error) {
	dec := json.NewDecoder(r)
	var out []bundle.Record
	for {
		var rec bundle.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, errors.New("no records")
	}
	return out, nil
}

// packRecords fills missing vectors, checks dimensions and encodes the index.
// Records keep the exact vectors stored in the index.
func packRecords(ctx context.Context, records []bundle.Record, opt packOptions) (*bundle.Bundle, error) {
	if err := embedMissing(ctx, records, opt.embedder); err != nil {
		return nil, err
	}

	dim := len(records[0].Vector)
	vectors := make([][]float32, len(records))
	for i := range records {
		if len(records[i].Vector) != dim {
			return nil, fmt.Errorf("record %s has dimension %d, want %d", records[i].ID, len(records[i].Vector), dim)
		}
		if opt.normalize {
			records[i].Vector = flat.NormalizeL2(records[i].Vector)
		}
		vectors[i] = records[i].Vector
	}

	index, err := flat.Encode(opt.metric, opt.compression, dim, vectors)
	if err != nil {
		return nil, fmt.Errorf("cannot build index: %w", err)
	}
	return &bundle.Bundle{Index: index, Records: records}, nil
}

func embedMissing(ctx context.Context, records []bundle.Record, prov embeddings.Provider) error {
	var pending []int
	for i, r := range records {
		if len(r.Vector) > 0 {
			continue
		}
		if prov == nil {
			return fmt.Errorf("record %s has no vector (use --embed to embed metadata.content)", r.ID)
		}
		if strings.TrimSpace(r.Metadata.Content) == "" {
			return fmt.Errorf("record %s has neither a vector nor content to embed", r.ID)
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += embedBatch {
		batch := pending[start:min(start+embedBatch, len(pending))]
		texts := make([]string, len(batch))
		for j, i := range batch {
			texts[j] = records[i].Metadata.Content
		}
		vecs, err := prov.Embed(ctx, texts...)
		if err != nil {
			return fmt.Errorf("cannot embed records with %s: %w", prov.ModelID(), err)
		}
		for j, i := range batch {
			records[i].Vector = vecs[j]
		}
		printInfo("", fmt.Sprintf("embedded %d/%d record(s)", start+len(batch), len(pending)))
	}
	return nil
}
