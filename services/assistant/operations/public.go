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
	"strconv"
	"strings"

	"github.com/kargohat/assistant/services/assistant/identity"
	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/assistant/textnorm"
	"github.com/kargohat/assistant/services/llm"
)

const (
	internationalTermsText = "Yurt dışı gönderileri için fiyatlandırma ülkeye, paketin desi değerine ve gümrük işlemlerine göre değişir. Detaylı tarife ve gerekli belgelerin listesi kayıtlı telefon numaranıza SMS ile gönderilmiştir."
	identityHelpText       = "Kimlik doğrulama sorunları genellikle yanlış bilgi girişinden kaynaklanır. Lütfen gönderi numaranızı, gönderide kayıtlı ad soyadınızı ve telefon numaranızı kontrol ederek tekrar deneyin. Sorun devam ederse sizi bir yetkiliye aktarabilirim."
	praiseText             = "Hizmetimizden memnun kalmanıza çok sevindik! Güzel geri bildiriminizi ekibimizle paylaşacağım."
)

func (r *Registry) listCampaigns(ctx context.Context, _ *call) (Result, error) {
	campaigns, err := r.store.ActiveCampaigns(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(campaigns) == 0 {
		return ok("Aktif kampanya yok."), nil
	}
	parts := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		parts = append(parts, fmt.Sprintf("%s (%s)", c.Title, c.Description))
	}
	return ok("Aktif kampanyalarımız: " + strings.Join(parts, "; ") + "."), nil
}

func (r *Registry) quoteFee(ctx context.Context, c *call) (Result, error) {
	origin, dest, rawDesi := c.param("origin"), c.param("destination"), c.param("desi")
	switch {
	case origin == "":
		return ask("Kargonuz hangi il veya ilçeden gönderilecek?"), nil
	case dest == "":
		return ask("Kargonuz hangi il veya ilçeye gönderilecek?"), nil
	case rawDesi == "":
		return ask("Paketinizin desi değeri nedir? Bilmiyorsanız en x boy x yükseklik (cm) çarpımını 3000'e bölerek hesaplayabilirsiniz."), nil
	}
	desi, err := shipping.ParseDesi(rawDesi)
	if err != nil {
		return ask("Desi değerini sayı olarak yazar mısınız? Örneğin 4 veya 4,5."), nil
	}

	km, err := r.distance.Estimate(ctx, origin, dest)
	if err != nil {
		return Result{}, err
	}
	if km <= 0 {
		return ask(fmt.Sprintf("%s ile %s arasındaki mesafeyi hesaplayamadım. Gönderim ve varış noktasını il ve ilçe olarak yazar mısınız?", origin, dest)), nil
	}
	tariff, err := r.store.ActiveTariff(ctx)
	if err != nil {
		return Result{}, err
	}
	q := tariff.Quote(km, desi)
	haul := "kısa mesafe"
	if q.LongHaul {
		haul = "uzun mesafe"
	}
	return ok(fmt.Sprintf("%s - %s arası yaklaşık %s km. %s desi paket için %s tarifesiyle tahmini gönderim ücreti %s.",
		origin, dest, formatNumber(km), formatNumber(desi), haul, shipping.FormatMoney(q.Total))), nil
}

// branchName drops the generic suffix so replies read "Beşiktaş şubemiz".
func branchName(b shipping.Branch) string {
	return strings.TrimSpace(strings.TrimSuffix(b.Name, " Şube"))
}

func (r *Registry) findBranch(ctx context.Context, c *call) (Result, error) {
	loc := c.param("location")
	if loc == "" || textnorm.Fold(loc) == "genel" {
		return r.listCities(ctx)
	}
	branches, err := r.store.FindBranches(ctx, loc)
	if err != nil {
		return Result{}, err
	}
	switch len(branches) {
	case 0:
		return notFound(fmt.Sprintf("Maalesef %s bölgesinde henüz bir şubemiz bulunmuyor.", loc)), nil
	case 1:
		b := branches[0]
		return ok(fmt.Sprintf("%s şubemiz %s ilçesindedir. Adres: %s, %s/%s.", branchName(b), b.District, b.Address, b.District, b.City)), nil
	default:
		names := make([]string, 0, len(branches))
		for _, b := range branches {
			names = append(names, branchName(b))
		}
		return ask(fmt.Sprintf("%s bölgesinde %d şubemiz var: %s. Hangisinin adresini istersiniz?", loc, len(branches), strings.Join(names, ", "))), nil
	}
}

func (r *Registry) listCities(ctx context.Context) (Result, error) {
	all, err := r.store.AllBranches(ctx)
	if err != nil {
		return Result{}, err
	}
	var cities []string
	seen := make(map[string]bool)
	for _, b := range all {
		if !seen[b.City] {
			seen[b.City] = true
			cities = append(cities, b.City)
		}
	}
	if len(cities) == 0 {
		return notFound("Şu an kayıtlı şubemiz bulunmuyor."), nil
	}
	return ask(fmt.Sprintf("Şubelerimizin bulunduğu iller: %s. Hangi ildeki şubemizi öğrenmek istersiniz?", strings.Join(cities, ", "))), nil
}

func (r *Registry) branchHours(ctx context.Context, c *call) (Result, error) {
	return r.branchLines(ctx, c.param("location"), "Hangi şubemizin çalışma saatlerini öğrenmek istersiniz?",
		func(b shipping.Branch) string { return fmt.Sprintf("%s şubemiz %s açıktır", branchName(b), b.Hours) })
}

func (r *Registry) branchPhone(ctx context.Context, c *call) (Result, error) {
	return r.branchLines(ctx, c.param("location"), "Hangi şubemizin telefon numarasını öğrenmek istersiniz?",
		func(b shipping.Branch) string { return fmt.Sprintf("%s şubemizin telefonu %s", branchName(b), b.Phone) })
}

func (r *Registry) branchLines(ctx context.Context, loc, prompt string, line func(shipping.Branch) string) (Result, error) {
	if loc == "" {
		return ask(prompt), nil
	}
	branches, err := r.store.FindBranches(ctx, loc)
	if err != nil {
		return Result{}, err
	}
	if len(branches) == 0 {
		return notFound(fmt.Sprintf("Maalesef %s bölgesinde henüz bir şubemiz bulunmuyor.", loc)), nil
	}
	lines := make([]string, 0, len(branches))
	for _, b := range branches {
		lines = append(lines, line(b))
	}
	return ok(strings.Join(lines, ". ") + "."), nil
}

// nearestBranch picks the branch whose district appears in the address,
// falling back to one whose city does.
func (r *Registry) nearestBranch(ctx context.Context, c *call) (Result, error) {
	addr := c.param("address")
	if addr == "" {
		return ask("Size en yakın şubeyi bulabilmem için bulunduğunuz il ve ilçeyi yazar mısınız?"), nil
	}
	all, err := r.store.AllBranches(ctx)
	if err != nil {
		return Result{}, err
	}

	folded := textnorm.Fold(addr)
	var best *shipping.Branch
	for i := range all {
		b := &all[i]
		if strings.Contains(folded, textnorm.Fold(b.District)) {
			best = b
			break
		}
		if best == nil && strings.Contains(folded, textnorm.Fold(b.City)) {
			best = b
		}
	}
	if best == nil {
		return notFound("Adresinize yakın bir şube tespit edemedim. İl ve ilçe bilgisini daha açık yazar mısınız?"), nil
	}

	prefix := fmt.Sprintf("Size en yakın şubemiz %s olarak tespit edildi. ", branchName(*best))
	info := textnorm.Fold(c.param("info"))
	switch {
	case strings.Contains(info, "saat") || strings.Contains(info, "hour"):
		return ok(prefix + fmt.Sprintf("Çalışma saatleri: %s.", best.Hours)), nil
	case strings.Contains(info, "telefon") || strings.Contains(info, "phone") || strings.Contains(info, "numara"):
		return ok(prefix + fmt.Sprintf("Telefon numarası: %s.", best.Phone)), nil
	default:
		return ok(prefix + fmt.Sprintf("Adres: %s, %s/%s.", best.Address, best.District, best.City)), nil
	}
}

func (r *Registry) requestSupervisor(ctx context.Context, c *call) (Result, error) {
	name, rawPhone := c.param("name"), c.param("phone")
	if name == "" || rawPhone == "" {
		return ask("Sizi yetkili arkadaşımıza aktarabilmem için adınızı, soyadınızı ve telefon numaranızı paylaşır mısınız?"), nil
	}
	phone, valid := identity.NormalizePhone(rawPhone)
	if !valid {
		return ask("Telefon numaranızı başında 0 olmadan 10 haneli olarak yazar mısınız? Örneğin 5xx xxx xx xx."), nil
	}

	var customerID int64
	cust, err := r.store.FindCustomerByPhone(ctx, phone)
	switch {
	case err == nil && textnorm.Contains(name, cust.Name):
		customerID = cust.ID
	case err != nil && !errors.Is(err, shipping.ErrNotFound):
		return Result{}, err
	}

	reason := c.param("reason")
	if reason == "" {
		reason = "Belirtilmedi"
	}
	order := textnorm.Digits(c.param("number"))
	if order == "" {
		order = c.req.Caller.TrackingNo
	}
	id, err := r.store.InsertEscalation(ctx, shipping.Escalation{
		CustomerID:  customerID,
		Name:        name,
		Phone:       phone,
		OrderNumber: order,
		Reason:      reason,
		Status:      shipping.RecordWaiting,
		CreatedAt:   r.today(),
	})
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Teşekkürler %s. Talebiniz alınmıştır (Talep No: #%d). Yetkili arkadaşımız en kısa sürede %s numaralı telefonunuzdan size dönüş yapacaktır.",
		name, id, identity.MaskPhone(phone))), nil
}

func (r *Registry) customsEstimate(ctx context.Context, c *call) (Result, error) {
	category, price, country := c.param("category"), c.param("price"), c.param("country")
	switch {
	case category == "":
		return ask("Göndereceğiniz ürün hangi kategoride? Örneğin giyim, elektronik veya kozmetik."), nil
	case price == "":
		return ask("Ürünün yaklaşık değeri nedir?"), nil
	case country == "":
		return ask("Gönderi hangi ülkeye yapılacak?"), nil
	}
	if r.advisor == nil {
		return refuse("Gümrük vergisi tahmini şu an yapılamıyor. Güncel oranlar için şubelerimizden bilgi alabilirsiniz."), nil
	}

	prompt := fmt.Sprintf("GÖREV: Türkiye'den %s ülkesine gönderilecek, %s değerindeki %s kategorisindeki bir ürün için "+
		"yaklaşık gümrük vergisi ve masraflarını tahmin et.\n\nKURALLAR:\n"+
		"1. En fazla üç cümle yaz.\n2. Tutarın tahmini olduğunu ve kesin bilginin gümrük idaresinden alınması gerektiğini belirt.\n"+
		"3. Markdown, emoji veya madde işareti kullanma.", country, price, category)
	text, err := r.advisor.Generate(ctx, prompt, llm.GenerationParams{Temperature: llm.Float32(0.2)})
	if err != nil {
		return Result{}, fmt.Errorf("customs estimate: %w", err)
	}
	text = strings.NewReplacer("**", "", "```", "").Replace(text)
	return Result{Kind: KindOK, Text: strings.TrimSpace(text), Verbatim: true}, nil
}

// formatNumber renders a float without trailing zeros and with a decimal
// comma.
func formatNumber(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", ",", 1)
}
