// Package archive copies canonical game records to a DynamoDB table keyed by
// season and date/team pair, for consumers outside the PostgreSQL store.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/store"
)

const (
	maxBatch    = 25
	maxAttempts = 6
)

// DynamoDBAPI is the subset of the DynamoDB client the archive uses.
type DynamoDBAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Archive writes game records to one table.
type Archive struct {
	ddb     DynamoDBAPI
	table   string
	backoff time.Duration
}

// New wraps an existing client.
func New(ddb DynamoDBAPI, table string) *Archive {
	return &Archive{ddb: ddb, table: table, backoff: 120 * time.Millisecond}
}

// NewFromEnv loads the default AWS configuration for region.
func NewFromEnv(ctx context.Context, region, table string) (*Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return New(dynamodb.NewFromConfig(cfg), table), nil
}

// SortKey is "<date>#<low id>-<high id>", unique per canonical record.
func SortKey(g league.Game) string {
	low, high := g.HomeTeamID, g.AwayTeamID
	if low > high {
		low, high = high, low
	}
	return fmt.Sprintf("%s#%02d-%02d", g.Date.Format(league.DateLayout), low, high)
}

// PutGames writes games in batches of 25, retrying unprocessed items.
func (a *Archive) PutGames(ctx context.Context, games []league.Game) error {
	if len(games) == 0 {
		return nil
	}
	now := strconv.FormatInt(time.Now().Unix(), 10)

	for i := 0; i < len(games); i += maxBatch {
		end := min(i+maxBatch, len(games))

		reqs := make([]types.WriteRequest, 0, end-i)
		for _, g := range games[i:end] {
			if g.HomeTeamID <= 0 || g.AwayTeamID <= 0 {
				continue
			}
			reqs = append(reqs, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: gameItem(g, now)},
			})
		}
		if len(reqs) == 0 {
			continue
		}
		if err := a.batchWriteWithRetry(ctx, reqs); err != nil {
			return errors.Wrap(err, "batch write games")
		}
	}
	return nil
}

func gameItem(g league.Game, now string) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"Season":     &types.AttributeValueMemberS{Value: strconv.Itoa(g.Date.Year())}, // PK
		"DatePair":   &types.AttributeValueMemberS{Value: SortKey(g)},                  // SK
		"Date":       &types.AttributeValueMemberS{Value: g.Date.Format(league.DateLayout)},
		"HomeTeamID": &types.AttributeValueMemberN{Value: strconv.Itoa(g.HomeTeamID)},
		"AwayTeamID": &types.AttributeValueMemberN{Value: strconv.Itoa(g.AwayTeamID)},
		"HomeAbbr":   &types.AttributeValueMemberS{Value: g.HomeAbbr},
		"AwayAbbr":   &types.AttributeValueMemberS{Value: g.AwayAbbr},
		"League":     &types.AttributeValueMemberS{Value: string(g.League)},
		"Status":     &types.AttributeValueMemberS{Value: string(g.Status)},
		"Winner":     &types.AttributeValueMemberS{Value: string(g.Winner)},
		"IsDraw":     &types.AttributeValueMemberBOOL{Value: g.IsDraw},
		"UpdatedAt":  &types.AttributeValueMemberN{Value: now},
	}
	if g.HasScores() {
		item["HomeScore"] = &types.AttributeValueMemberN{Value: strconv.Itoa(int(g.HomeScore.Int32))}
		item["AwayScore"] = &types.AttributeValueMemberN{Value: strconv.Itoa(int(g.AwayScore.Int32))}
	}
	if len(g.InningsHome) > 0 {
		item["InningsHome"] = &types.AttributeValueMemberL{Value: inningList(g.InningsHome)}
	}
	if len(g.InningsAway) > 0 {
		item["InningsAway"] = &types.AttributeValueMemberL{Value: inningList(g.InningsAway)}
	}
	if g.Venue.Valid {
		item["Venue"] = &types.AttributeValueMemberS{Value: g.Venue.String}
	}
	if g.GameTime.Valid {
		item["GameTime"] = &types.AttributeValueMemberS{Value: g.GameTime.String}
	}
	return item
}

func inningList(in []sql.NullInt32) []types.AttributeValue {
	enc := store.EncodeInnings(in)
	out := make([]types.AttributeValue, len(enc))
	for i, s := range enc {
		out[i] = &types.AttributeValueMemberS{Value: s}
	}
	return out
}

func (a *Archive) batchWriteWithRetry(ctx context.Context, reqs []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{a.table: reqs},
	}
	backoff := a.backoff

	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := a.ddb.BatchWriteItem(ctx, input)
		if err != nil {
			return errors.Mark(err, league.ErrDependencyUnavailable)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		input.RequestItems = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff += a.backoff
		}
	}
	return errors.Newf("unprocessed items remained after retries for table %s", a.table)
}
