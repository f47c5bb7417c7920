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

	"github.com/kargohat/assistant/services/assistant/shipping"
)

// Movement locations and kinds written by operations.
const (
	callCenter = "Çağrı Merkezi"

	movementCancel        = "İptal"
	movementAddressChange = "Adres Değişikliği"
	movementAddressFix    = "Adres Düzeltme"
	movementReschedule    = "Erteleme"
)

// Reschedule offsets in days.
const (
	urgentOffsetDays  = 1
	notHomeOffsetDays = 2
)

// Priorities. 1 is normal.
const (
	priorityRaised = 2
	priorityUrgent = 3
)

func (r *Registry) trackShipment(_ context.Context, c *call) (Result, error) {
	sh := c.shipment
	eta := formatDate(sh.EstimatedDelivery)
	if c.role == shipping.RoleSender {
		switch sh.Status {
		case shipping.StatusPreparing:
			return ok("Siparişiniz alındı, kargo çıkışı için hazırlıklar devam ediyor."), nil
		case shipping.StatusInTransit:
			return ok(fmt.Sprintf("Gönderdiğiniz kargo yola çıktı ve şu an transfer sürecinde. Tahmini varış: %s.", eta)), nil
		case shipping.StatusOutForDelivery:
			return ok("Gönderdiğiniz kargo şu an dağıtımda. Bugün gün içerisinde alıcıya teslim edilmesi planlanıyor."), nil
		case shipping.StatusDelivered:
			return ok(fmt.Sprintf("Gönderdiğiniz kargo %s tarihinde alıcıya başarıyla teslim edilmiştir.", eta)), nil
		}
	} else {
		switch sh.Status {
		case shipping.StatusPreparing:
			return ok(fmt.Sprintf("%s numaralı kargonuzun gönderici tarafından hazırlıkları devam ediyor.", sh.TrackingNumber)), nil
		case shipping.StatusInTransit:
			return ok(fmt.Sprintf("%s numaralı kargonuz transfer sürecinde. Tahmini teslim tarihi: %s.", sh.TrackingNumber, eta)), nil
		case shipping.StatusOutForDelivery:
			return ok(fmt.Sprintf("%s numaralı kargonuz dağıtıma çıktı, bugün %s adresine teslim edilecektir.", sh.TrackingNumber, sh.DeliveryAddress)), nil
		case shipping.StatusDelivered:
			return ok(fmt.Sprintf("%s numaralı kargonuz %s tarihinde %s adresine ulaştırılmıştır.", sh.TrackingNumber, eta, sh.DeliveryAddress)), nil
		}
	}
	return ok("Bu kargo iptal edilmiştir."), nil
}

func (r *Registry) estimatedDelivery(_ context.Context, c *call) (Result, error) {
	sh := c.shipment
	if sh.Status == shipping.StatusDelivered {
		return ok(fmt.Sprintf("Kargonuz %s tarihinde teslim edilmiştir.", formatDate(sh.EstimatedDelivery))), nil
	}
	return ok(fmt.Sprintf("Tahmini teslimat: %s, 09:00 - 18:00 saatleri arası.", formatDate(sh.EstimatedDelivery))), nil
}

func (r *Registry) shipmentSupport(ctx context.Context, c *call) (Result, error) {
	sh := c.shipment
	text := "Kargonuz için henüz bir hareket kaydı bulunmuyor."
	m, err := r.store.LatestMovement(ctx, sh.OrderNumber)
	switch {
	case err == nil:
		text = fmt.Sprintf("Kargonuzun son hareketi: %s, %s, %s %s",
			m.OccurredAt.Format("02.01.2006 15:04"), m.Location, m.Kind, m.Description)
	case !errors.Is(err, shipping.ErrNotFound):
		return Result{}, err
	}

	if sh.DestinationBranchID > 0 {
		b, err := r.store.FindBranch(ctx, sh.DestinationBranchID)
		switch {
		case err == nil:
			text += fmt.Sprintf(" Teslimat şubeniz %s, telefon: %s.", branchName(*b), b.Phone)
		case !errors.Is(err, shipping.ErrNotFound):
			return Result{}, err
		}
	}
	return ok(text), nil
}

func (r *Registry) cancelShipment(ctx context.Context, c *call) (Result, error) {
	sh := c.shipment
	err := r.store.InTx(ctx, func(tx shipping.Store) error {
		if err := tx.UpdateStatus(ctx, sh.OrderNumber, shipping.StatusCancelled); err != nil {
			return err
		}
		return tx.AppendMovement(ctx, shipping.Movement{
			OrderNumber: sh.OrderNumber,
			OccurredAt:  r.now(),
			Location:    callCenter,
			Kind:        movementCancel,
			Description: "Gönderi müşteri talebiyle iptal edildi.",
		})
	})
	if err != nil {
		return Result{}, err
	}
	return ok("Kargo başarıyla İPTAL EDİLMİŞTİR. Prosedür gereği kargo ücret iadesi yapılmamaktadır."), nil
}

func (r *Registry) initiateReturn(ctx context.Context, c *call) (Result, error) {
	reason := c.param("reason")
	if reason == "" {
		reason = "Belirtilmedi"
	}
	id, err := r.store.InsertReturn(ctx, shipping.ReturnRequest{
		OrderNumber: c.shipment.OrderNumber,
		CustomerID:  c.req.Caller.CustomerID,
		Reason:      reason,
		Status:      shipping.RecordPendingApproval,
		CreatedAt:   r.today(),
	})
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("İade talebiniz oluşturuldu (Talep No: #%d). Talebiniz onaylandığında kuryemiz ürünü adresinizden teslim alacaktır.", id)), nil
}

func (r *Registry) reportDamage(ctx context.Context, c *call) (Result, error) {
	kind := c.param("damage_type")
	if kind == "" {
		kind = "Belirtilmedi"
	}
	id, err := r.store.InsertDamageReport(ctx, shipping.DamageReport{
		OrderNumber: c.shipment.OrderNumber,
		CustomerID:  c.req.Caller.CustomerID,
		DamageType:  kind,
		Status:      shipping.RecordUnderReview,
		CreatedAt:   r.today(),
	})
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Hasar kaydınız oluşturuldu. Dosya No: #%d. Ekibimiz inceleme sonrası sizinle iletişime geçecektir.", id)), nil
}

func (r *Registry) fileComplaint(ctx context.Context, c *call) (Result, error) {
	subject := c.param("subject")
	if subject == "" {
		return ask("Şikayetinizi kısaca anlatır mısınız?"), nil
	}
	id, err := r.store.InsertComplaint(ctx, shipping.Complaint{
		OrderNumber: c.shipment.OrderNumber,
		CustomerID:  c.req.Caller.CustomerID,
		Kind:        shipping.ComplaintGeneral,
		Subject:     subject,
		Status:      shipping.RecordOpen,
		CreatedAt:   r.today(),
	})
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Şikayetiniz kaydedildi. Şikayet Takip No: #%d.", id)), nil
}

func (r *Registry) changeAddress(ctx context.Context, c *call) (Result, error) {
	addr := c.param("new_address")
	if addr == "" {
		return ask("Kargonuzun teslim edilmesini istediğiniz yeni adresi yazar mısınız?"), nil
	}
	sh := c.shipment
	err := r.store.InTx(ctx, func(tx shipping.Store) error {
		if err := tx.UpdateAddress(ctx, sh.OrderNumber, addr); err != nil {
			return err
		}
		return tx.AppendMovement(ctx, shipping.Movement{
			OrderNumber: sh.OrderNumber,
			OccurredAt:  r.now(),
			Location:    callCenter,
			Kind:        movementAddressChange,
			Description: "Teslimat adresi müşteri talebiyle güncellendi.",
		})
	})
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Teslimat adresiniz başarıyla '%s' olarak güncellendi.", addr)), nil
}

func (r *Registry) reportWrongDelivery(ctx context.Context, c *call) (Result, error) {
	addr := c.param("correct_address")
	if addr == "" {
		return ask("Kargonun teslim edilmesi gereken doğru adresi yazar mısınız?"), nil
	}
	sh := c.shipment
	delivered := sh.Status == shipping.StatusDelivered
	status := shipping.RecordOpen
	if delivered {
		status = shipping.RecordUrgent
	}

	var id int64
	err := r.store.InTx(ctx, func(tx shipping.Store) error {
		if err := tx.UpdateAddress(ctx, sh.OrderNumber, addr); err != nil {
			return err
		}
		if err := tx.UpdatePriority(ctx, sh.OrderNumber, priorityUrgent); err != nil {
			return err
		}
		if err := tx.AppendMovement(ctx, shipping.Movement{
			OrderNumber: sh.OrderNumber,
			OccurredAt:  r.now(),
			Location:    callCenter,
			Kind:        movementAddressFix,
			Description: "Yanlış teslimat bildirimi üzerine adres düzeltildi.",
		}); err != nil {
			return err
		}
		var err error
		id, err = tx.InsertComplaint(ctx, shipping.Complaint{
			OrderNumber: sh.OrderNumber,
			CustomerID:  c.req.Caller.CustomerID,
			Kind:        shipping.ComplaintWrongAddress,
			Subject:     "Yanlış adrese teslimat: " + addr,
			Status:      status,
			CreatedAt:   r.today(),
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if delivered {
		return ok(fmt.Sprintf("Yaşanan karışıklık için özür dileriz. Kargonuzun yanlış adrese teslim edildiği kaydını acil olarak açtık (Kayıt No: #%d). Ekibimiz kargonun %s adresine ulaştırılması için hemen çalışmaya başlayacak.", id, addr)), nil
	}
	return ok(fmt.Sprintf("Teslimat adresiniz '%s' olarak düzeltildi ve gönderiniz öncelikli hale getirildi (Kayıt No: #%d).", addr, id)), nil
}

func (r *Registry) reportDelay(ctx context.Context, c *call) (Result, error) {
	sh := c.shipment
	today := r.today()
	if !sh.EstimatedDelivery.Before(today) {
		return ok(fmt.Sprintf("Kargonuz için şu an bir gecikme görünmüyor, tahmini teslim tarihi %s.", formatDate(sh.EstimatedDelivery))), nil
	}

	eta := today.AddDate(0, 0, urgentOffsetDays)
	var id int64
	err := r.store.InTx(ctx, func(tx shipping.Store) error {
		if err := tx.UpdateEstimatedDelivery(ctx, sh.OrderNumber, eta); err != nil {
			return err
		}
		if err := tx.UpdatePriority(ctx, sh.OrderNumber, priorityRaised); err != nil {
			return err
		}
		var err error
		id, err = tx.InsertComplaint(ctx, shipping.Complaint{
			OrderNumber: sh.OrderNumber,
			CustomerID:  c.req.Caller.CustomerID,
			Kind:        shipping.ComplaintDelay,
			Subject:     "Teslimat gecikmesi",
			Status:      shipping.RecordOpen,
			CreatedAt:   today,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Yaşanan gecikme için özür dileriz. Kargonuz öncelikli teslimat listesine alındı ve yeni tahmini teslim tarihi %s olarak güncellendi. Gecikme kaydınız: #%d.", formatDate(eta), id)), nil
}

func (r *Registry) reportCourierNoShow(ctx context.Context, c *call) (Result, error) {
	sh := c.shipment
	today := r.today()
	eta := today.AddDate(0, 0, urgentOffsetDays)
	var id int64
	err := r.store.InTx(ctx, func(tx shipping.Store) error {
		if err := tx.UpdateEstimatedDelivery(ctx, sh.OrderNumber, eta); err != nil {
			return err
		}
		if err := tx.UpdatePriority(ctx, sh.OrderNumber, priorityUrgent); err != nil {
			return err
		}
		var err error
		id, err = tx.InsertComplaint(ctx, shipping.Complaint{
			OrderNumber: sh.OrderNumber,
			CustomerID:  c.req.Caller.CustomerID,
			Kind:        shipping.ComplaintCourier,
			Subject:     "Kurye adrese gelmedi",
			Status:      shipping.RecordUrgent,
			CreatedAt:   today,
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertEscalation(ctx, shipping.Escalation{
			CustomerID:  c.req.Caller.CustomerID,
			Name:        c.req.Caller.DisplayName,
			OrderNumber: sh.OrderNumber,
			Reason:      fmt.Sprintf("Kurye gelmedi şikayeti #%d", id),
			Status:      shipping.RecordAutoEscalated,
			CreatedAt:   today,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Yaşanan aksaklık için özür dileriz. Şikayetiniz acil olarak kaydedildi (Kayıt No: #%d) ve bölge sorumlumuza iletildi. Kargonuz yarın (%s) öncelikli olarak teslim edilecektir.", id, formatDate(eta))), nil
}

func (r *Registry) reportNotHome(ctx context.Context, c *call) (Result, error) {
	sh := c.shipment
	eta := r.today().AddDate(0, 0, notHomeOffsetDays)
	recalled := sh.Status == shipping.StatusOutForDelivery

	err := r.store.InTx(ctx, func(tx shipping.Store) error {
		if recalled {
			if err := tx.UpdateStatus(ctx, sh.OrderNumber, shipping.StatusInTransit); err != nil {
				return err
			}
		}
		if err := tx.UpdateEstimatedDelivery(ctx, sh.OrderNumber, eta); err != nil {
			return err
		}
		if err := tx.UpdatePriority(ctx, sh.OrderNumber, priorityRaised); err != nil {
			return err
		}
		return tx.AppendMovement(ctx, shipping.Movement{
			OrderNumber: sh.OrderNumber,
			OccurredAt:  r.now(),
			Location:    callCenter,
			Kind:        movementReschedule,
			Description: fmt.Sprintf("Alıcı adreste olmayacağı için teslimat %s tarihine ertelendi.", formatDate(eta)),
		})
	})
	if err != nil {
		return Result{}, err
	}

	text := fmt.Sprintf("%s numaralı kargonuzun teslimat tarihi %s yerine %s olarak planlanmıştır.",
		sh.TrackingNumber, formatDate(sh.EstimatedDelivery), formatDate(eta))
	if recalled {
		text = "Kuryemiz şu an dağıtımda olduğu için kendisine uyarı gönderdim, kargonuz bugün adresinize getirilmeyecek. " + text
	}
	return ok(text), nil
}

// maxTrackingAttempts bounds retries when a generated number collides with
// an existing one.
const maxTrackingAttempts = 5

func (r *Registry) reportTrackingError(ctx context.Context, c *call) (Result, error) {
	sh := c.shipment
	for range maxTrackingAttempts {
		candidate := r.newTrack()
		_, err := r.store.FindShipment(ctx, candidate)
		if err == nil {
			continue
		}
		if !errors.Is(err, shipping.ErrNotFound) {
			return Result{}, err
		}
		if err := r.store.IssueTrackingNumber(ctx, sh.OrderNumber, candidate); err != nil {
			return Result{}, err
		}
		return Result{
			Kind:          KindOK,
			Text:          fmt.Sprintf("%s numaralı gönderiniz için yeni takip numarası tanımlandı: %s.", sh.OrderNumber, candidate),
			Template:      TemplateNewTrackingNumber,
			NewTrackingNo: candidate,
		}, nil
	}
	return Result{}, errors.New("could not allocate an unused tracking number")
}
