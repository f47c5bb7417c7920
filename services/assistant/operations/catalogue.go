// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package operations

import (
	"strings"

	"github.com/kargohat/assistant/services/assistant/shipping"
)

// Operation names a business operation. The set is closed; classifier
// output is validated with Parse.
type Operation string

// Public operations.
const (
	OpListCampaigns      Operation = "list_campaigns"
	OpQuoteFee           Operation = "quote_fee"
	OpFindBranch         Operation = "find_branch"
	OpBranchHours        Operation = "branch_hours"
	OpBranchPhone        Operation = "branch_phone"
	OpNearestBranch      Operation = "nearest_branch"
	OpRequestSupervisor  Operation = "request_supervisor"
	OpInternationalTerms Operation = "international_terms"
	OpCustomsEstimate    Operation = "customs_estimate"
	OpIdentityHelp       Operation = "identity_help"
	OpPraise             Operation = "praise"
)

// OpVerifyIdentity is handled by the dispatch engine, not the registry.
const OpVerifyIdentity Operation = "verify_identity"

// Personal operations.
const (
	OpTrackShipment       Operation = "track_shipment"
	OpEstimatedDelivery   Operation = "estimated_delivery"
	OpShipmentSupport     Operation = "shipment_support"
	OpCancelShipment      Operation = "cancel_shipment"
	OpInitiateReturn      Operation = "initiate_return"
	OpReportDamage        Operation = "report_damage"
	OpFileComplaint       Operation = "file_complaint"
	OpChangeAddress       Operation = "change_address"
	OpReportWrongDelivery Operation = "report_wrong_delivery"
	OpReportDelay         Operation = "report_delay"
	OpReportCourierNoShow Operation = "report_courier_no_show"
	OpReportNotHome       Operation = "report_not_home"
	OpDisputeFee          Operation = "dispute_fee"
	OpInvoiceDetails      Operation = "invoice_details"
	OpUpdateRecipient     Operation = "update_recipient"
	OpChangeNotification  Operation = "change_notification"
	OpReportTrackingError Operation = "report_tracking_error"
)

// Access is the identity an operation requires.
type Access int

const (
	AccessPublic Access = iota
	AccessIdentity
	AccessPersonal
)

// entry describes one catalogue operation.
type entry struct {
	access Access
	// shipment is true when the operation acts on one shipment.
	shipment bool
	// role restricts the caller's role on the shipment. Empty allows both.
	role shipping.Role
	// roleRefusal is the answer when the caller's role does not match.
	roleRefusal string
	// gate maps statuses that refuse the operation to the refusal text.
	gate map[shipping.Status]string
	// mutates marks operations that write to the store; they are audited.
	mutates bool
}

const (
	notDeliveredReturn = "Kargonuz henüz teslim edilmediği için iade talebi oluşturulamıyor. Teslim almadan vazgeçtiyseniz gönderiyi iptal edebilirsiniz."
	notDeliveredDamage = "Kargonuz sistemde henüz teslim edilmiş görünmüyor. Hasar kaydı yalnızca teslim alınan kargolar için açılabilir."
	alreadyDelivered   = "Kargonuz teslim edilmiş görünüyor, bu işlem teslim edilen gönderiler için yapılamıyor."
	alreadyCancelled   = "Bu gönderi iptal edilmiş olduğu için bu işlem yapılamıyor."
)

// Status gates. A status present in a gate refuses the operation with the
// mapped text before any handler runs.
var (
	gateEstimate = map[shipping.Status]string{
		shipping.StatusCancelled: "Bu gönderi iptal edildiği için bir teslimat tarihi bulunmuyor.",
	}
	gateCancel = map[shipping.Status]string{
		shipping.StatusDelivered: "Kargonuz teslim edildiği için iptal edilemez.",
		shipping.StatusCancelled: "Bu gönderi zaten iptal edilmiş, ayrıca bir işlem yapmanıza gerek yok.",
	}
	gateReturn = map[shipping.Status]string{
		shipping.StatusPreparing:      notDeliveredReturn,
		shipping.StatusInTransit:      notDeliveredReturn,
		shipping.StatusOutForDelivery: notDeliveredReturn,
		shipping.StatusCancelled:      alreadyCancelled,
	}
	gateDamage = map[shipping.Status]string{
		shipping.StatusPreparing:      notDeliveredDamage,
		shipping.StatusInTransit:      notDeliveredDamage,
		shipping.StatusOutForDelivery: notDeliveredDamage,
		shipping.StatusCancelled:      alreadyCancelled,
	}
	gateChangeAddress = map[shipping.Status]string{
		shipping.StatusDelivered: "Kargonuz teslim edildiği için adres değişikliği yapılamıyor. Yanlış adrese teslim edildiyse bunu bildirebilirsiniz.",
		shipping.StatusCancelled: alreadyCancelled,
	}
	gateWrongDelivery = map[shipping.Status]string{
		shipping.StatusCancelled: alreadyCancelled,
	}
	gateDelay = map[shipping.Status]string{
		shipping.StatusDelivered: "Kargonuz teslim edilmiş görünüyor, gecikme kaydı açılamıyor.",
		shipping.StatusCancelled: alreadyCancelled,
	}
	gateCourierNoShow = map[shipping.Status]string{
		shipping.StatusDelivered: "Sistemde kargonuz teslim edilmiş görünüyor. Teslim almadıysanız yanlış teslimat bildirimi oluşturabilirim.",
		shipping.StatusCancelled: alreadyCancelled,
	}
	gateNotHome = map[shipping.Status]string{
		shipping.StatusDelivered: "Kargonuz zaten teslim edilmiş görünüyor, erteleme işlemi yapılamaz.",
		shipping.StatusCancelled: alreadyCancelled,
	}
	gateUpdateRecipient = map[shipping.Status]string{
		shipping.StatusDelivered: alreadyDelivered,
		shipping.StatusCancelled: alreadyCancelled,
	}
)

var catalogue = map[Operation]entry{
	OpListCampaigns:      {access: AccessPublic},
	OpQuoteFee:           {access: AccessPublic},
	OpFindBranch:         {access: AccessPublic},
	OpBranchHours:        {access: AccessPublic},
	OpBranchPhone:        {access: AccessPublic},
	OpNearestBranch:      {access: AccessPublic},
	OpRequestSupervisor:  {access: AccessPublic, mutates: true},
	OpInternationalTerms: {access: AccessPublic},
	OpCustomsEstimate:    {access: AccessPublic},
	OpIdentityHelp:       {access: AccessPublic},
	OpPraise:             {access: AccessPublic},

	OpVerifyIdentity: {access: AccessIdentity},

	OpTrackShipment:       {access: AccessPersonal, shipment: true},
	OpEstimatedDelivery:   {access: AccessPersonal, shipment: true, gate: gateEstimate},
	OpShipmentSupport:     {access: AccessPersonal, shipment: true},
	OpCancelShipment:      {access: AccessPersonal, shipment: true, mutates: true, gate: gateCancel},
	OpReportDamage:        {access: AccessPersonal, shipment: true, mutates: true, gate: gateDamage},
	OpFileComplaint:       {access: AccessPersonal, shipment: true, mutates: true},
	OpChangeAddress:       {access: AccessPersonal, shipment: true, mutates: true, gate: gateChangeAddress},
	OpReportWrongDelivery: {access: AccessPersonal, shipment: true, mutates: true, gate: gateWrongDelivery},
	OpReportDelay:         {access: AccessPersonal, shipment: true, mutates: true, gate: gateDelay},
	OpReportCourierNoShow: {access: AccessPersonal, shipment: true, mutates: true, gate: gateCourierNoShow},
	OpReportNotHome:       {access: AccessPersonal, shipment: true, mutates: true, gate: gateNotHome},
	OpDisputeFee:          {access: AccessPersonal, shipment: true},
	OpChangeNotification:  {access: AccessPersonal, mutates: true},
	OpReportTrackingError: {access: AccessPersonal, shipment: true, mutates: true},

	OpInitiateReturn: {
		access: AccessPersonal, shipment: true, mutates: true, gate: gateReturn,
		role:        shipping.RoleRecipient,
		roleRefusal: "İade talebi sadece alıcı tarafından oluşturulabilir.",
	},
	OpInvoiceDetails: {
		access: AccessPersonal, shipment: true,
		role:        shipping.RoleSender,
		roleRefusal: "Fatura bilgileri yalnızca gönderici tarafından görüntülenebilir.",
	},
	OpUpdateRecipient: {
		access: AccessPersonal, shipment: true, mutates: true, gate: gateUpdateRecipient,
		role:        shipping.RoleSender,
		roleRefusal: "Alıcı bilgileri yalnızca gönderici tarafından değiştirilebilir.",
	},
}

// Parse validates a classifier-supplied function name.
func Parse(name string) (Operation, bool) {
	op := Operation(strings.ToLower(strings.TrimSpace(name)))
	_, ok := catalogue[op]
	return op, ok
}

// Access returns the identity op requires. Unknown operations are
// personal.
func (op Operation) Access() Access {
	e, ok := catalogue[op]
	if !ok {
		return AccessPersonal
	}
	return e.access
}

// IsPublic reports whether op runs without verification.
func (op Operation) IsPublic() bool {
	return op.Access() == AccessPublic
}

// Gate returns the refusal text when status blocks op.
func (op Operation) Gate(status shipping.Status) (string, bool) {
	text, refused := catalogue[op].gate[status]
	return text, refused
}

// All returns every operation in the catalogue.
func All() []Operation {
	out := make([]Operation, 0, len(catalogue))
	for op := range catalogue {
		out = append(out, op)
	}
	return out
}
