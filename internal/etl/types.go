package etl

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is a normalized payment status. The values are the exact
// strings persisted in transacoes.status_pagamento.
type Status string

const (
	StatusPaid     Status = "PAGO"
	StatusPending  Status = "PENDENTE"
	StatusCanceled Status = "CANCELADO"
	StatusLate     Status = "ATRASADO"
	StatusError    Status = "ERRO"
)

// RunStatus is the terminal (or in-progress) state of one file-processing
// attempt, as persisted in logs_etl.status_execucao.
type RunStatus string

const (
	RunInProgress RunStatus = "EM_ANDAMENTO"
	RunSuccess    RunStatus = "SUCESSO"
	RunError      RunStatus = "ERRO"
	RunPartial    RunStatus = "PARCIAL"
)

// RejectReason is a machine-readable code explaining why a row was
// rejected. Codes end up in the run log detail payload.
type RejectReason string

const (
	ReasonMissingField   RejectReason = "campo_obrigatorio_ausente"
	ReasonInvalidDate    RejectReason = "data_invalida"
	ReasonFutureDate     RejectReason = "data_futura"
	ReasonInvalidAmount  RejectReason = "valor_invalido"
	ReasonNegativeAmount RejectReason = "valor_negativo"
	ReasonInvalidStatus  RejectReason = "status_invalido"
	ReasonInvalidQuantity RejectReason = "quantidade_invalida"
	ReasonTotalMismatch   RejectReason = "total_inconsistente"
)

// Record is one raw input row, keyed by canonical column name.
// Values are untrimmed cell contents as read from the file.
type Record map[string]string

// RawFile is the output of extraction: the raw row sequence plus the
// file's identity (name, path, size, content fingerprint).
type RawFile struct {
	Path        string
	Name        string
	SizeBytes   int64
	Fingerprint string
	Records     []Record

	// AlreadyProcessed is set when the fingerprint matched a PROCESSADO
	// entry in the registry; Records is empty in that case.
	AlreadyProcessed bool
}

// Row is a fully transformed transaction ready for loading.
type Row struct {
	TransactionID string
	TransactionAt time.Time
	Customer      string
	Product       string
	Category      string
	Amount        decimal.Decimal
	Status        Status
	PaidAt        *time.Time

	// Calendar fields derived once at transform time.
	Year    int
	Month   int
	Weekday int // 0 = Monday .. 6 = Sunday
	Quarter int

	SourceFile string
}

// RejectedRow records a row that failed data-quality validation.
type RejectedRow struct {
	Line   int // 1-based data row number within the file
	Reason RejectReason
	Detail string
}

// TransformResult is the outcome of transforming one file's records.
type TransformResult struct {
	Accepted   []Row
	Rejected   []RejectedRow
	Duplicates int
	Input      int
}

// Batch carries one file's accepted rows and bookkeeping to the loader.
type Batch struct {
	FileName    string
	FilePath    string
	Fingerprint string
	SizeBytes   int64

	ReadCount  int
	Rows       []Row
	Rejected   []RejectedRow
	Duplicates int
}

// LoadResult reports what the loader durably committed for one batch.
type LoadResult struct {
	LogID      int64
	Inserted   int
	Duplicates int
	Status     RunStatus
	Elapsed    time.Duration
}

// ItemRow is a transformed transaction line item. The product is still
// a name at this point; the loader resolves it against the catalog.
type ItemRow struct {
	TransactionID string
	Product       string
	Quantity      int
	UnitPrice     decimal.Decimal
	Total         decimal.Decimal
}

// ItemBatch carries one items file to the loader.
type ItemBatch struct {
	FileName    string
	FilePath    string
	Fingerprint string
	SizeBytes   int64

	ReadCount int
	Items     []ItemRow
	Rejected  []RejectedRow
}

// ItemLoadResult reports the outcome of loading an item batch.
// IntegrityRejected counts items whose product did not resolve.
type ItemLoadResult struct {
	LogID             int64
	Inserted          int
	IntegrityRejected int
	Status            RunStatus
	Elapsed           time.Duration
}

// CatalogEntry is one row of the category/product catalog seed file.
type CatalogEntry struct {
	Category            string
	CategoryDescription string
	Product             string
	Description         string
	BasePrice           decimal.Decimal
	MinPrice            decimal.Decimal
	MaxPrice            decimal.Decimal
	Active              bool
}

// FileFailure describes a file-level fault recorded as an ERRO run.
type FileFailure struct {
	FileName    string
	Fingerprint string
	ReadCount   int
	Message     string
	Elapsed     time.Duration
}

// Store is the persistence surface the pipeline depends on.
type Store interface {
	// IsFileProcessed reports whether a file with this content
	// fingerprint has already been ingested successfully.
	IsFileProcessed(ctx context.Context, fingerprint string) (bool, error)

	// Load persists a batch under the at-most-once-per-business-id
	// guarantee and finalizes its run log.
	Load(ctx context.Context, b *Batch) (LoadResult, error)

	// LoadItems persists a line-item batch, resolving products against
	// the catalog.
	LoadItems(ctx context.Context, b *ItemBatch) (ItemLoadResult, error)

	// RecordFailure writes a terminal ERRO run log for a file that
	// never reached the loader (extraction or transform fault).
	RecordFailure(ctx context.Context, f FileFailure) error

	// ReconcileStaleRuns flips EM_ANDAMENTO runs older than the cutoff
	// to ERRO and returns how many were touched.
	ReconcileStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error)
}
