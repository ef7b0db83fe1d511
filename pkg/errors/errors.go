package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

// Is reports whether err carries this code.
func (c Code[MT]) Is(err error) bool {
	var e Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code() == c.Code
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	GrpcCode() grpccodes.Code
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) GrpcCode() grpccodes.Code {
	return e.code.GrpcCode
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

// IsRetryable reports whether the failure may succeed if resubmitted once the caller's
// state changes. Only a short balance qualifies, every other kind is terminal for the
// given input.
func IsRetryable(err error) bool {
	return INSUFFICIENT_BALANCE.Is(err)
}

type MarketMetadata struct {
	MarketId string `json:"market_id"`
}

type AlreadyInitializedMetadata struct {
	MarketId  string `json:"market_id"`
	CreatedAt int64  `json:"created_at"`
}

type UnauthorizedMetadata struct {
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

type InsufficientBalanceMetadata struct {
	AssetId   string `json:"asset_id"`
	HoldingId string `json:"holding_id"`
	Balance   uint64 `json:"balance"`
	Required  uint64 `json:"required"`
}

type MarketExpiryMetadata struct {
	MarketId string `json:"market_id"`
	Expiry   int64  `json:"expiry"`
	Now      int64  `json:"now"`
}

type MarketResolvedMetadata struct {
	MarketId string `json:"market_id"`
	Winner   string `json:"winner"`
}

type InvalidWinnerMetadata struct {
	MarketId string   `json:"market_id"`
	Winner   string   `json:"winner"`
	Outcomes []string `json:"outcomes"`
}

type AmountMetadata struct {
	Amount uint64 `json:"amount"`
}

type AssetMetadata struct {
	AssetId string `json:"asset_id"`
}

type HoldingMetadata struct {
	HoldingId string `json:"holding_id"`
}

type AssetMismatchMetadata struct {
	HoldingId string `json:"holding_id"`
	Expected  string `json:"expected"`
	Got       string `json:"got"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}

var ALREADY_INITIALIZED = Code[AlreadyInitializedMetadata]{
	1,
	"ALREADY_INITIALIZED",
	grpccodes.AlreadyExists,
}
var UNAUTHORIZED = Code[UnauthorizedMetadata]{2, "UNAUTHORIZED", grpccodes.PermissionDenied}

var INSUFFICIENT_BALANCE = Code[InsufficientBalanceMetadata]{
	3,
	"INSUFFICIENT_BALANCE",
	grpccodes.FailedPrecondition,
}
var MARKET_EXPIRED = Code[MarketExpiryMetadata]{4, "MARKET_EXPIRED", grpccodes.FailedPrecondition}

var MARKET_NOT_RESOLVED = Code[MarketMetadata]{
	5,
	"MARKET_NOT_RESOLVED",
	grpccodes.FailedPrecondition,
}

var MARKET_ALREADY_RESOLVED = Code[MarketResolvedMetadata]{
	6,
	"MARKET_ALREADY_RESOLVED",
	grpccodes.FailedPrecondition,
}

var INVALID_WINNER_ASSET = Code[InvalidWinnerMetadata]{
	7,
	"INVALID_WINNER_ASSET",
	grpccodes.InvalidArgument,
}
var INVALID_AMOUNT = Code[AmountMetadata]{8, "INVALID_AMOUNT", grpccodes.InvalidArgument}
var MARKET_NOT_FOUND = Code[MarketMetadata]{9, "MARKET_NOT_FOUND", grpccodes.NotFound}

var INVALID_MARKET_CONFIG = Code[map[string]any]{
	10,
	"INVALID_MARKET_CONFIG",
	grpccodes.InvalidArgument,
}

var MARKET_NOT_EXPIRED = Code[MarketExpiryMetadata]{
	11,
	"MARKET_NOT_EXPIRED",
	grpccodes.FailedPrecondition,
}
var ASSET_NOT_FOUND = Code[AssetMetadata]{12, "ASSET_NOT_FOUND", grpccodes.NotFound}
var HOLDING_NOT_FOUND = Code[HoldingMetadata]{13, "HOLDING_NOT_FOUND", grpccodes.NotFound}
var ASSET_MISMATCH = Code[AssetMismatchMetadata]{14, "ASSET_MISMATCH", grpccodes.InvalidArgument}
