// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phrasing

import (
	"fmt"

	"github.com/kargohat/assistant/services/assistant/identity"
	"github.com/kargohat/assistant/services/assistant/shipping"
)

// Fallback is the only reply a user sees when a turn fails upstream.
const Fallback = "Üzgünüm, şu anda isteğinizi işleyemiyorum. Lütfen birazdan tekrar dener misiniz?"

// BlockedText answers a message rejected by the input filter.
const BlockedText = "Bu mesajı işleyemiyorum. Size kargonuzla ilgili nasıl yardımcı olabilirim?"

// UnroutableText answers a classifier decision naming no known operation.
const UnroutableText = "Bu konuda size yardımcı olamıyorum. Kargo takibi, ücret hesaplama, şube bilgisi veya şikayet gibi konularda yardımcı olabilirim."

// RateLimitedText answers a session sending faster than it may.
const RateLimitedText = "Çok hızlı mesaj gönderiyorsunuz. Lütfen birkaç saniye bekleyip tekrar yazar mısınız?"

// Welcome is the raw confirmation for a successful verification.
func Welcome(id identity.Identity) string {
	role := "alıcısı"
	if id.Role == shipping.RoleSender {
		role = "göndericisi"
	}
	return fmt.Sprintf("Teşekkürler %s, kimliğiniz doğrulandı. %s numaralı gönderinin %s olarak işlem yapabilirsiniz. Size nasıl yardımcı olabilirim?",
		id.DisplayName, id.TrackingNo, role)
}

// WelcomePrefix opens a reply whose answer comes from a replayed request.
func WelcomePrefix(id identity.Identity) string {
	return fmt.Sprintf("Teşekkürler %s, kimliğiniz doğrulandı.", id.DisplayName)
}

// VerificationHint turns a failed verification into a request for the
// claim that is most likely wrong. It never names the records checked.
func VerificationHint(o identity.Outcome) string {
	switch o.Reason {
	case identity.ReasonMissingFields:
		next := identity.FieldName
		if len(o.Missing) > 0 {
			next = o.Missing[0]
		}
		switch next {
		case identity.FieldNumber:
			return "Lütfen gönderinizin sipariş veya takip numarasını yazar mısınız?"
		case identity.FieldPhone:
			return "Son olarak sistemde kayıtlı telefon numaranızı yazar mısınız?"
		default:
			return "Kimliğinizi doğrulayabilmem için adınızı ve soyadınızı yazar mısınız?"
		}
	case identity.ReasonPhoneInvalid:
		return "Telefon numaranız geçerli görünmüyor. Lütfen 10 haneli olarak, örneğin 5xx xxx xx xx şeklinde yazar mısınız?"
	case identity.ReasonNameMismatch:
		return "Bilgileriniz eşleşmedi. Lütfen adınızı ve soyadınızı gönderide kayıtlı olduğu şekilde tekrar yazar mısınız?"
	default:
		return "Bilgileriniz eşleşmedi. Lütfen gönderi numaranızı ve telefon numaranızı kontrol edip tekrar yazar mısınız?"
	}
}

// newTrackingNumber is rendered without the model so the digits reach the
// user exactly as issued.
func newTrackingNumber(number string) string {
	return fmt.Sprintf("Yaşadığınız sorun için özür dileriz. Gönderiniz için yeni takip numaranız %s olarak tanımlanmıştır. Sonraki sorgularınızda bu numarayı kullanabilirsiniz.", number)
}
