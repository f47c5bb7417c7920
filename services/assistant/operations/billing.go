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
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/assistant/textnorm"
)

const invoiceNotFoundText = "Fatura bulunamadı. Fatura numarasını kontrol edip tekrar yazar mısınız?"

// disputeFee recomputes an invoice from its recorded route and weight and
// compares it with the charged amount.
//
// The recorded distance is used when present; invoices without one are
// re-estimated from their origin and destination.
func (r *Registry) disputeFee(ctx context.Context, c *call) (Result, error) {
	raw := textnorm.Digits(c.param("invoice_id"))
	if raw == "" {
		return ask("İtiraz etmek istediğiniz faturanın numarasını yazar mısınız?"), nil
	}
	invoiceID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ask("Fatura numarasını yalnızca rakamlarla yazar mısınız?"), nil
	}

	inv, err := r.store.FindInvoice(ctx, invoiceID, c.shipment.OrderNumber)
	if errors.Is(err, shipping.ErrNotFound) {
		return notFound(invoiceNotFoundText), nil
	}
	if err != nil {
		return Result{}, err
	}
	if inv.CustomerID != c.req.Caller.CustomerID {
		return notFound(invoiceNotFoundText), nil
	}

	km := inv.DistanceKm
	if km <= 0 {
		if km, err = r.distance.Estimate(ctx, inv.Origin, inv.Destination); err != nil {
			return Result{}, err
		}
		if km <= 0 {
			return refuse("Bu faturanın güzergah mesafesini doğrulayamadım. Talebinizi inceleme ekibimize iletmemi ister misiniz?"), nil
		}
	}

	tariff, err := r.store.ActiveTariff(ctx)
	if err != nil {
		return Result{}, err
	}
	expected := tariff.Quote(km, inv.Desi).Total
	verdict, diff := shipping.Assess(inv.Charged, expected)

	switch verdict {
	case shipping.VerdictOvercharged:
		return ok(fmt.Sprintf("Faturanızda hata tespit edildi. Olması gereken tutar %s, yansıyan tutar %s. Aradaki %s için iade süreci başlatıldı.",
			shipping.FormatMoney(expected), shipping.FormatMoney(inv.Charged), shipping.FormatMoney(diff))), nil
	case shipping.VerdictUndercharged:
		return ok(fmt.Sprintf("Faturanız kontrol edildi. Olması gereken tutar %s, yansıyan tutar %s. Aradaki %s fark lehinize olup sizden ek ücret talep edilmeyecektir.",
			shipping.FormatMoney(expected), shipping.FormatMoney(inv.Charged), shipping.FormatMoney(math.Abs(diff)))), nil
	default:
		return ok(fmt.Sprintf("Faturanız kontrol edildi. Olması gereken tutar %s. Faturanız DOĞRUDUR.", shipping.FormatMoney(expected))), nil
	}
}

func (r *Registry) invoiceDetails(ctx context.Context, c *call) (Result, error) {
	invoices, err := r.store.FindInvoicesByOrder(ctx, c.shipment.OrderNumber)
	if err != nil {
		return Result{}, err
	}
	var lines []string
	for _, inv := range invoices {
		if inv.CustomerID != c.req.Caller.CustomerID {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d numaralı fatura (%s): %s - %s güzergahı, %s km, %s desi, toplam %s",
			inv.ID, formatDate(inv.IssuedAt), inv.Origin, inv.Destination,
			formatNumber(inv.DistanceKm), formatNumber(inv.Desi), shipping.FormatMoney(inv.Charged)))
	}
	if len(lines) == 0 {
		return notFound("Bu siparişe ait sizin adınıza kesilmiş bir fatura bulunamadı."), nil
	}
	return ok(strings.Join(lines, ". ") + "."), nil
}
