// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package operations is the closed catalogue of business operations the
// assistant can perform, and the registry that dispatches to them.
//
// Every request passes the same checks in the same order before a handler
// runs: the operation must be in the catalogue, personal operations need a
// verified caller, shipment-bound operations resolve the shipment and the
// caller's role on it, and the status gate refuses operations the shipment's
// current status does not allow. Handlers therefore only implement the
// business effect.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kargohat/assistant/pkg/extensions"
	"github.com/kargohat/assistant/services/assistant/distance"
	"github.com/kargohat/assistant/services/assistant/observability"
	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/assistant/textnorm"
	"github.com/kargohat/assistant/services/llm"
)

var tracer = otel.Tracer("kargohat.assistant.operations")

// Caller is who is asking, as far as the session knows.
type Caller struct {
	SessionID   string
	Verified    bool
	CustomerID  int64
	DisplayName string
	// Role is the role established at verification, on TrackingNo.
	Role       shipping.Role
	TrackingNo string
}

// Request is one operation invocation.
type Request struct {
	// Function is the classifier-supplied operation name.
	Function string
	Params   map[string]string
	Caller   Caller
}

func (r Request) param(name string) string {
	return strings.TrimSpace(r.Params[name])
}

// Config configures a Registry.
type Config struct {
	Store    shipping.Store
	Distance distance.Estimator
	// Advisor answers free-text estimates such as customs duties. Optional;
	// customs_estimate is refused without one.
	Advisor llm.LLMClient
	Now     func() time.Time
	// TrackingNumbers generates candidate replacement tracking numbers.
	TrackingNumbers func() string
	Audit           extensions.AuditLogger
	Metrics         *observability.Metrics
	Logger          *slog.Logger
}

// Registry dispatches requests to operation handlers.
//
// # Thread Safety
//
// Safe for concurrent use. Handlers share no mutable state; multi-step
// writes run in one store transaction.
type Registry struct {
	store    shipping.Store
	distance distance.Estimator
	advisor  llm.LLMClient
	now      func() time.Time
	newTrack func() string
	audit    extensions.AuditLogger
	metrics  *observability.Metrics
	logger   *slog.Logger

	handlers map[Operation]handler
}

// call is the resolved context a handler runs with.
type call struct {
	req      Request
	op       Operation
	shipment *shipping.Shipment
	// role is the caller's role on shipment.
	role shipping.Role
}

func (c *call) param(name string) string { return c.req.param(name) }

type handler func(ctx context.Context, c *call) (Result, error)

// NewRegistry creates a registry. Store and Distance are required.
func NewRegistry(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TrackingNumbers == nil {
		cfg.TrackingNumbers = randomTrackingNumber
	}
	if cfg.Audit == nil {
		cfg.Audit = &extensions.NopAuditLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{
		store:    cfg.Store,
		distance: cfg.Distance,
		advisor:  cfg.Advisor,
		now:      cfg.Now,
		newTrack: cfg.TrackingNumbers,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	r.handlers = map[Operation]handler{
		OpListCampaigns:      r.listCampaigns,
		OpQuoteFee:           r.quoteFee,
		OpFindBranch:         r.findBranch,
		OpBranchHours:        r.branchHours,
		OpBranchPhone:        r.branchPhone,
		OpNearestBranch:      r.nearestBranch,
		OpRequestSupervisor:  r.requestSupervisor,
		OpInternationalTerms: staticReply(internationalTermsText),
		OpCustomsEstimate:    r.customsEstimate,
		OpIdentityHelp:       staticReply(identityHelpText),
		OpPraise:             staticReply(praiseText),

		OpTrackShipment:       r.trackShipment,
		OpEstimatedDelivery:   r.estimatedDelivery,
		OpShipmentSupport:     r.shipmentSupport,
		OpCancelShipment:      r.cancelShipment,
		OpInitiateReturn:      r.initiateReturn,
		OpReportDamage:        r.reportDamage,
		OpFileComplaint:       r.fileComplaint,
		OpChangeAddress:       r.changeAddress,
		OpReportWrongDelivery: r.reportWrongDelivery,
		OpReportDelay:         r.reportDelay,
		OpReportCourierNoShow: r.reportCourierNoShow,
		OpReportNotHome:       r.reportNotHome,
		OpReportTrackingError: r.reportTrackingError,
		OpDisputeFee:          r.disputeFee,
		OpInvoiceDetails:      r.invoiceDetails,
		OpUpdateRecipient:     r.updateRecipient,
		OpChangeNotification:  r.changeNotification,
	}
	return r
}

const (
	needsIdentityText = "Bu işlem için önce kimliğinizi doğrulamam gerekiyor. Adınızı ve soyadınızı alabilir miyim?"
	askNumberText     = "Hangi gönderi numarası için işlem yapmamı istersiniz?"
	notOwnerText      = "Bu gönderi numarası doğrulanan kimliğinizle eşleşmiyor. Başka bir gönderi için işlem yapmak isterseniz o gönderinin bilgileriyle kimlik doğrulaması yapmanız gerekir."
)

// Dispatch runs one operation.
//
// # Description
//
// Validates the function name against the catalogue, applies the access
// check, resolves the shipment for shipment-bound operations (the "number"
// parameter, else the session's tracking number), applies the role rule
// and the status gate, then runs the handler.
//
// # Outputs
//
//   - Result: a definitive answer for the user, including refusals and
//     requests for missing input.
//   - error: ErrUnroutable for names outside the catalogue, or a hard
//     failure (store or collaborator) that the caller converts to the
//     generic fallback reply.
func (r *Registry) Dispatch(ctx context.Context, req Request) (Result, error) {
	op, known := Parse(req.Function)
	if !known || op == OpVerifyIdentity {
		return Result{}, fmt.Errorf("%w: %q", ErrUnroutable, req.Function)
	}

	ctx, span := tracer.Start(ctx, "operations.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("operation", string(op)))

	res, err := r.dispatch(ctx, op, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
		r.metrics.RecordOperation(string(op), "error")
		r.record(ctx, op, req, nil, "error")
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	res.Op = op
	span.SetAttributes(attribute.String("result.kind", string(res.Kind)))
	r.metrics.RecordOperation(string(op), string(res.Kind))
	r.logger.Info("operation dispatched",
		"session_id", req.Caller.SessionID,
		"operation", string(op),
		"kind", string(res.Kind),
	)
	return res, nil
}

func (r *Registry) dispatch(ctx context.Context, op Operation, req Request) (Result, error) {
	e := catalogue[op]
	if e.access == AccessPersonal && !req.Caller.Verified {
		return Result{Kind: KindNeedsIdentity, Text: needsIdentityText}, nil
	}

	c := &call{req: req, op: op}
	if e.shipment {
		number := textnorm.Digits(req.param("number"))
		if number == "" {
			number = req.Caller.TrackingNo
		}
		if number == "" {
			return ask(askNumberText), nil
		}
		sh, err := r.store.FindShipment(ctx, number)
		if errors.Is(err, shipping.ErrNotFound) {
			return notFound(fmt.Sprintf("%s numaralı bir gönderi bulunamadı. Numarayı kontrol edip tekrar yazar mısınız?", number)), nil
		}
		if err != nil {
			return Result{}, err
		}
		c.shipment = sh
		c.role = sh.RoleOf(req.Caller.CustomerID)
		if c.role == "" {
			r.record(ctx, op, req, sh, string(KindRefusal))
			return refuse(notOwnerText), nil
		}
		if e.role != "" && c.role != e.role {
			return refuse(e.roleRefusal), nil
		}
		if text, refused := op.Gate(sh.Status); refused {
			return refuse(text), nil
		}
	}

	res, err := r.handlers[op](ctx, c)
	if err != nil {
		return Result{}, err
	}
	if e.mutates {
		r.record(ctx, op, req, c.shipment, string(res.Kind))
	}
	return res, nil
}

// record writes an audit event. Audit failures are logged, never returned.
func (r *Registry) record(ctx context.Context, op Operation, req Request, sh *shipping.Shipment, outcome string) {
	user := "anonymous"
	if req.Caller.Verified {
		user = strconv.FormatInt(req.Caller.CustomerID, 10)
	}
	event := extensions.AuditEvent{
		EventType:    "data.write",
		Timestamp:    r.now().UTC(),
		UserID:       user,
		Action:       string(op),
		ResourceType: "shipment",
		Outcome:      outcome,
		Metadata:     map[string]any{"session_id": req.Caller.SessionID},
	}
	if sh != nil {
		event.ResourceID = sh.OrderNumber
	}
	if err := r.audit.Log(ctx, event); err != nil {
		r.logger.Warn("audit write failed", "operation", string(op), "error", err)
	}
}

// today is the current calendar date in UTC, the zone shipment dates are
// stored in.
func (r *Registry) today() time.Time {
	y, m, d := r.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

func randomTrackingNumber() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

func staticReply(text string) handler {
	return func(context.Context, *call) (Result, error) {
		return ok(text), nil
	}
}
