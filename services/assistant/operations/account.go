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
	"strings"
	"unicode"

	"github.com/kargohat/assistant/services/assistant/identity"
	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/assistant/textnorm"
)

var (
	recipientPhoneWords = map[string]bool{"phone": true, "telefon": true, "telefonu": true, "tel": true, "numara": true, "numarasi": true, "gsm": true}
	recipientNameWords  = map[string]bool{"name": true, "ad": true, "adi": true, "isim": true, "ismi": true, "soyad": true, "soyadi": true, "adsoyad": true}
)

// parseRecipientField accepts the Turkish and English words the classifier
// tends to emit. Whole words are matched so "adres" is not read as "ad".
func parseRecipientField(s string) (shipping.RecipientField, bool) {
	words := strings.FieldsFunc(textnorm.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if recipientPhoneWords[w] {
			return shipping.RecipientPhone, true
		}
	}
	for _, w := range words {
		if recipientNameWords[w] {
			return shipping.RecipientName, true
		}
	}
	return "", false
}

func (r *Registry) updateRecipient(ctx context.Context, c *call) (Result, error) {
	field, known := parseRecipientField(c.param("field"))
	if !known {
		return ask("Alıcının adını mı yoksa telefon numarasını mı güncellemek istersiniz?"), nil
	}
	value := c.param("value")
	if value == "" {
		if field == shipping.RecipientName {
			return ask("Alıcının yeni adını ve soyadını yazar mısınız?"), nil
		}
		return ask("Alıcının yeni telefon numarasını yazar mısınız?"), nil
	}

	display := value
	if field == shipping.RecipientPhone {
		phone, valid := identity.NormalizePhone(value)
		if !valid {
			return ask("Alıcının telefon numarasını 10 haneli olarak yazar mısınız? Örneğin 5xx xxx xx xx."), nil
		}
		value = phone
		display = identity.MaskPhone(phone)
	}

	err := r.store.UpdateRecipient(ctx, c.shipment.OrderNumber, field, value)
	if errors.Is(err, shipping.ErrSharedRecipient) {
		return refuse("Alıcı kaydı başka gönderilerde de kullanıldığı için isim değişikliği yapılamıyor. Alıcının telefon numarasını güncelleyerek gönderiyi başka bir kişiye yönlendirebilirsiniz."), nil
	}
	if err != nil {
		return Result{}, err
	}
	if field == shipping.RecipientName {
		return ok(fmt.Sprintf("Alıcı adı '%s' olarak güncellendi.", display)), nil
	}
	return ok(fmt.Sprintf("Alıcı telefon numarası %s olarak güncellendi.", display)), nil
}

func (r *Registry) changeNotification(ctx context.Context, c *call) (Result, error) {
	channel, known := shipping.ParseNotificationChannel(c.param("channel"))
	if !known {
		return ask("Bildirimleri SMS ile mi yoksa E-posta ile mi almak istersiniz?"), nil
	}
	if err := r.store.UpdateNotificationPreference(ctx, c.req.Caller.CustomerID, channel); err != nil {
		return Result{}, err
	}
	label := "SMS"
	if channel == shipping.NotifyEmail {
		label = "E-posta"
	}
	return ok(fmt.Sprintf("Bildirim tercihiniz başarıyla '%s' olarak güncellenmiştir.", label)), nil
}
