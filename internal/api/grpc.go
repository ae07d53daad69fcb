package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kellyq/internal/report"
)

// Report service method names.
const (
	ReportServiceName   = "kellyq.v1.Report"
	getScoresMethod     = "/" + ReportServiceName + "/GetScores"
	getCurveMethod      = "/" + ReportServiceName + "/GetCurve"
	requestFieldRun     = "run"
	requestFieldSymbol  = "symbol"
	responseFieldScores = "scores"
	responseFieldRows   = "rows"
)

// ReportServer is the server API for the kellyq.v1.Report service. Messages
// are google.protobuf.Struct so clients need no generated stubs.
type ReportServer interface {
	GetScores(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCurve(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ReportServiceDesc describes the kellyq.v1.Report service.
var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ReportServiceName,
	HandlerType: (*ReportServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetScores", Handler: unaryHandler(getScoresMethod, ReportServer.GetScores)},
		{MethodName: "GetCurve", Handler: unaryHandler(getCurveMethod, ReportServer.GetCurve)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kellyq/v1/report.proto",
}

func unaryHandler(fullMethod string, call func(ReportServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReportServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReportServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCServer adapts a Service to ReportServer.
type GRPCServer struct {
	svc *Service
}

var _ ReportServer = (*GRPCServer)(nil)

// NewGRPCServer wraps svc.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (g *GRPCServer) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&ReportServiceDesc, g)
}

// GetScores answers {run?: string} with {run: string, scores: {sym: number|null}}.
func (g *GRPCServer) GetScores(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := req.GetFields()[requestFieldRun].GetStringValue()
	id, scores, err := g.svc.Scores(ctx, runID)
	if err != nil {
		return nil, grpcError(err)
	}
	fields := make(map[string]*structpb.Value, len(scores))
	for k, v := range scores {
		fields[k] = numberValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		requestFieldRun:     structpb.NewStringValue(id),
		responseFieldScores: structpb.NewStructValue(&structpb.Struct{Fields: fields}),
	}}, nil
}

// GetCurve answers {symbol: string} with {symbol, short_ma, long_ma, rows: [...]}.
// Row dates are RFC 3339 strings.
func (g *GRPCServer) GetCurve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol := req.GetFields()[requestFieldSymbol].GetStringValue()
	if symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}
	tbl, err := g.svc.Curve(ctx, symbol)
	if err != nil {
		return nil, grpcError(err)
	}
	return curveStruct(tbl), nil
}

func curveStruct(tbl report.Table) *structpb.Struct {
	rows := make([]*structpb.Value, len(tbl.Rows))
	for i, r := range tbl.Rows {
		rows[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"date":         structpb.NewStringValue(r.Date.Format(time.RFC3339)),
			"close":        numberValue(r.Close),
			"kelly_growth": numberValue(r.Growth),
			"fraction":     numberValue(r.Fraction),
			"ma_short":     numberValue(r.MAShort),
			"ma_long":      numberValue(r.MALong),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		requestFieldSymbol: structpb.NewStringValue(tbl.Symbol),
		"short_ma":         structpb.NewNumberValue(float64(tbl.ShortMA)),
		"long_ma":          structpb.NewNumberValue(float64(tbl.LongMA)),
		responseFieldRows:  structpb.NewListValue(&structpb.ListValue{Values: rows}),
	}}
}

// numberValue encodes NaN and infinities as null.
func numberValue(v float64) *structpb.Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return structpb.NewNullValue()
	}
	return structpb.NewNumberValue(v)
}

func grpcError(err error) error {
	switch statusFor(err) {
	case http.StatusNotFound:
		return status.Error(codes.NotFound, err.Error())
	case http.StatusConflict:
		return status.Error(codes.Aborted, err.Error())
	case http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// ReportClient calls the kellyq.v1.Report service over an existing
// connection.
type ReportClient struct {
	cc grpc.ClientConnInterface
}

// NewReportClient creates a ReportClient on cc.
func NewReportClient(cc grpc.ClientConnInterface) *ReportClient {
	return &ReportClient{cc: cc}
}

// Scores returns the scores of runID (latest when empty). Null scores come
// back as NaN.
func (c *ReportClient) Scores(ctx context.Context, runID string) (string, map[string]float64, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if runID != "" {
		req.Fields[requestFieldRun] = structpb.NewStringValue(runID)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getScoresMethod, req, out); err != nil {
		return "", nil, err
	}
	scores := make(map[string]float64)
	for k, v := range out.GetFields()[responseFieldScores].GetStructValue().GetFields() {
		scores[k] = numberOrNaN(v)
	}
	return out.GetFields()[requestFieldRun].GetStringValue(), scores, nil
}

// CurveRow is one decoded row of a GetCurve response.
type CurveRow struct {
	Date     string
	Close    float64
	Growth   float64
	Fraction float64
	MAShort  float64
	MALong   float64
}

// Curve returns the growth table of symbol in row order.
func (c *ReportClient) Curve(ctx context.Context, symbol string) ([]CurveRow, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		requestFieldSymbol: structpb.NewStringValue(symbol),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getCurveMethod, req, out); err != nil {
		return nil, err
	}
	values := out.GetFields()[responseFieldRows].GetListValue().GetValues()
	rows := make([]CurveRow, 0, len(values))
	for i, v := range values {
		f := v.GetStructValue().GetFields()
		if f == nil {
			return nil, fmt.Errorf("row %d: not an object", i)
		}
		rows = append(rows, CurveRow{
			Date:     f["date"].GetStringValue(),
			Close:    numberOrNaN(f["close"]),
			Growth:   numberOrNaN(f["kelly_growth"]),
			Fraction: numberOrNaN(f["fraction"]),
			MAShort:  numberOrNaN(f["ma_short"]),
			MALong:   numberOrNaN(f["ma_long"]),
		})
	}
	return rows, nil
}

func numberOrNaN(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return math.NaN()
}

// SortedKeys returns the keys of a score map in order.
func SortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
