package frontdao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/front-deployer/internal/errors"
)

// TableName returns the default ledger table of an environment.
func TableName(env string) string {
	return fmt.Sprintf("%s-front-deployer", env)
}

// ID identifies the ledger entry of a front in an environment: {env}/{front}
type ID string

func NewID(env, front string) ID {
	return ID(env + "/" + front)
}

// ParseID parses an ID into env and front components
func ParseID(id ID) (env, front string, err error) {
	parts := strings.Split(string(id), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid ID format: %s, expected {env}/{front}", id)
	}
	return parts[0], parts[1], nil
}

func (id ID) String() string {
	return string(id)
}

// Status of the latest deployment of a front
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusDeleting   Status = "DELETING"
)

// IsTerminal reports whether no further transition is expected.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Record holds the latest deployment of one front. Each deployment replaces
// the previous record of its front.
type Record struct {
	Env                string `ddb:"hash" dynamodbav:"pk"`                 // environment
	Front              string `ddb:"range" dynamodbav:"sk"`                // front name
	DeployID           string `dynamodbav:"deploy_id"`                     // KSUID of the deployment
	StackName          string `dynamodbav:"stack_name"`                    // CloudFormation stack name
	StackID            string `dynamodbav:"stack_id,omitempty"`            // CloudFormation stack ID
	Operation          string `dynamodbav:"operation,omitempty"`           // CREATE|UPDATE|NONE
	Status             Status `dynamodbav:"status"`                        // IN_PROGRESS|SUCCESS|FAILED|DELETING
	StatusReason       string `dynamodbav:"status_reason,omitempty"`       // failure detail
	DistributionDomain string `dynamodbav:"distribution_domain,omitempty"` // stack output
	TemplateSHA256     string `dynamodbav:"template_sha256"`               // digest of the deployed template
	CreatedAt          int64  `dynamodbav:"created_at"`                    // Unix timestamp
	UpdatedAt          int64  `dynamodbav:"updated_at"`                    // Unix timestamp
	FinishedAt         int64  `dynamodbav:"finished_at,omitempty"`         // Unix timestamp
}

func (r *Record) GetID() ID {
	return NewID(r.Env, r.Front)
}

// CreateInput contains fields for starting a deployment
type CreateInput struct {
	Env            string
	Front          string
	DeployID       string
	StackName      string
	TemplateSHA256 string
}

// DAO records the deployments of fronts
type DAO struct {
	db        *ddb.DDB
	table     *ddb.Table
	tableName string
}

func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:        db,
		table:     table,
		tableName: tableName,
	}
}

// TableName returns the table holding the ledger.
func (d *DAO) TableName() string {
	return d.tableName
}

// Create records the start of a deployment with IN_PROGRESS status, replacing
// the previous record of the front.
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		Env:            input.Env,
		Front:          input.Front,
		DeployID:       input.DeployID,
		StackName:      input.StackName,
		Status:         StatusInProgress,
		TemplateSHA256: input.TemplateSHA256,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create deployment record: %w", err)
	}

	return record, nil
}

// Find returns the record of a front or ErrRecordNotFound
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	env, front, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record
	err = d.table.Get(env).
		Range(front).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		if strings.Contains(err.Error(), "item not found") || strings.Contains(err.Error(), "ItemNotFound") {
			return Record{}, fmt.Errorf("%w: %s", errors.ErrRecordNotFound, id)
		}
		return Record{}, fmt.Errorf("failed to get deployment: %w", err)
	}

	if record.Env == "" && record.Front == "" {
		return Record{}, fmt.Errorf("%w: %s", errors.ErrRecordNotFound, id)
	}

	return record, nil
}

// UpdateInput contains fields for updating a deployment record
type UpdateInput struct {
	Env                string
	Front              string
	Status             Status
	StackID            string
	Operation          string
	StatusReason       string
	DistributionDomain string
}

// UpdateStatus moves a deployment to a new status
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	now := time.Now().Unix()

	update := d.table.Update(input.Env).
		Range(input.Front).
		Set("#Status = ?", string(input.Status)).
		Set("#UpdatedAt = ?", now)

	if input.StackID != "" {
		update = update.Set("#StackID = ?", input.StackID)
	}

	if input.Operation != "" {
		update = update.Set("#Operation = ?", input.Operation)
	}

	if input.StatusReason != "" {
		update = update.Set("#StatusReason = ?", input.StatusReason)
	}

	if input.DistributionDomain != "" {
		update = update.Set("#DistributionDomain = ?", input.DistributionDomain)
	}

	if input.Status.IsTerminal() {
		update = update.Set("#FinishedAt = ?", now)
	}

	err := update.RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update deployment status: %w", err)
	}

	return nil
}

// QueryByEnv returns the records of every front of an environment, ordered by front
func (d *DAO) QueryByEnv(ctx context.Context, env string) ([]Record, error) {
	var records []Record

	err := d.table.Query("#Env = ?", env).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}

	return records, nil
}

// Delete removes the record of a front
func (d *DAO) Delete(ctx context.Context, id ID) error {
	env, front, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(env).
		Range(front).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}

	return nil
}
