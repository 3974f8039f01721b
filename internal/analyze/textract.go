package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/amalfiblue/amalfiResults-sub000/internal/logging"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

// textractAPI is the subset of the Textract client used here.
type textractAPI interface {
	AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

// TextractAnalyzer uses AWS Textract table analysis.
type TextractAnalyzer struct {
	client textractAPI
	creds  aws.CredentialsProvider
}

// NewTextractAnalyzer loads the default AWS configuration for region.
func NewTextractAnalyzer(ctx context.Context, region string) (*TextractAnalyzer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &TextractAnalyzer{client: textract.NewFromConfig(cfg), creds: cfg.Credentials}, nil
}

func (t *TextractAnalyzer) Name() string { return "textract" }

// IsConfigured checks that AWS credentials can be resolved.
func (t *TextractAnalyzer) IsConfigured() bool {
	if t.creds == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := t.creds.Retrieve(ctx)
	return err == nil
}

// Analyze runs AnalyzeDocument with table detection on image bytes.
func (t *TextractAnalyzer) Analyze(ctx context.Context, image []byte) (*Analysis, error) {
	out, err := t.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: image},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables},
	})
	if err != nil {
		return nil, fmt.Errorf("textract AnalyzeDocument: %w", err)
	}
	return analysisFromBlocks(out.Blocks)
}

// analysisFromBlocks converts Textract blocks into cells. When a page holds
// several tables, the one with the most cells is taken as the tally.
func analysisFromBlocks(blocks []types.Block) (*Analysis, error) {
	byID := make(map[string]types.Block, len(blocks))
	var tables []types.Block
	var lines []string
	for _, b := range blocks {
		if b.Id != nil {
			byID[*b.Id] = b
		}
		switch b.BlockType {
		case types.BlockTypeTable:
			tables = append(tables, b)
		case types.BlockTypeLine:
			lines = append(lines, aws.ToString(b.Text))
		}
	}

	var best []string
	for _, table := range tables {
		ids := childIDs(table)
		if len(ids) > len(best) {
			best = ids
		}
	}
	if len(tables) > 1 {
		logging.Log.WithField("tables", len(tables)).Debug("multiple tables detected, using the largest")
	}

	var cells []tally.Cell
	for _, id := range best {
		b, ok := byID[id]
		if !ok || b.BlockType != types.BlockTypeCell {
			continue
		}
		cells = append(cells, tally.Cell{
			Row:    int(aws.ToInt32(b.RowIndex)),
			Column: int(aws.ToInt32(b.ColumnIndex)),
			Text:   cellText(b, byID),
		})
	}
	if len(cells) == 0 {
		return nil, ErrNoTable
	}

	return &Analysis{Cells: cells, Label: DetectBoothLabel(lines)}, nil
}

func childIDs(b types.Block) []string {
	var ids []string
	for _, rel := range b.Relationships {
		if rel.Type == types.RelationshipTypeChild {
			ids = append(ids, rel.Ids...)
		}
	}
	return ids
}

// cellText joins the words inside a cell with single spaces.
func cellText(cell types.Block, byID map[string]types.Block) string {
	var text string
	for _, id := range childIDs(cell) {
		child, ok := byID[id]
		if !ok {
			continue
		}
		var word string
		switch child.BlockType {
		case types.BlockTypeWord:
			word = aws.ToString(child.Text)
		case types.BlockTypeSelectionElement:
			if child.SelectionStatus == types.SelectionStatusSelected {
				word = "X"
			}
		}
		if word == "" {
			continue
		}
		if text != "" {
			text += " "
		}
		text += word
	}
	return text
}
