package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"eggprice_scraper/internal/models"
	"eggprice_scraper/internal/repository"
)

// registryIndex is the in-memory read model over the persisted zone set,
// rebuilt fresh at the start of every run.
type registryIndex struct {
	idByName map[string]uint
	idBySlug map[string]uint
	names    []string
}

func buildRegistryIndex(zones []models.Zone) *registryIndex {
	idx := &registryIndex{
		idByName: make(map[string]uint, len(zones)),
		idBySlug: make(map[string]uint, len(zones)),
		names:    make([]string, 0, len(zones)),
	}
	for _, z := range zones {
		idx.idByName[z.Name] = z.ID
		idx.idBySlug[strings.ToLower(z.Slug)] = z.ID
		idx.names = append(idx.names, z.Name)
	}
	return idx
}

func (idx *registryIndex) add(name, slug string, id uint) {
	if _, known := idx.idByName[name]; !known {
		idx.names = append(idx.names, name)
	}
	idx.idByName[name] = id
	idx.idBySlug[strings.ToLower(slug)] = id
}

// reconcileZones maps every parsed zone descriptor onto a registry id:
// exact name, then slug (same zone scraped under a different display name),
// then creation. A slug-unique violation on create means a concurrent run
// got there first, so the winner's row is re-queried and reused.
func (s *ScrapeService) reconcileZones(ctx context.Context, descriptors []models.ZoneDescriptor, idx *registryIndex, summary *models.RunSummary) map[string]uint {
	resolved := make(map[string]uint, len(descriptors))

	for _, d := range descriptors {
		summary.Stats.ZonesFound++

		if id, ok := idx.idByName[d.Name]; ok {
			resolved[d.Name] = id
			summary.Stats.ZonesValidated++
			continue
		}
		if id, ok := idx.idBySlug[strings.ToLower(d.Slug)]; ok {
			// Known zone, new display name: cache the alias.
			resolved[d.Name] = id
			idx.add(d.Name, d.Slug, id)
			summary.Stats.ZonesValidated++
			continue
		}

		summary.Stats.ZonesMissing++
		zone := &models.Zone{
			Name:     d.Name,
			Slug:     d.Slug,
			ZoneType: d.ZoneType,
			IsActive: true,
		}
		err := s.zones.InsertZone(ctx, zone)
		switch {
		case err == nil:
			s.logger.Info("created zone", zap.String("name", d.Name), zap.String("slug", d.Slug))
			resolved[d.Name] = zone.ID
			idx.add(d.Name, d.Slug, zone.ID)
			summary.Stats.ZonesValidated++
		case errors.Is(err, repository.ErrDuplicateSlug):
			existing, qErr := s.zones.FindZoneBySlug(ctx, d.Slug)
			if qErr != nil {
				summary.Errors = append(summary.Errors,
					fmt.Sprintf("zone %q: slug conflict re-query failed: %v", d.Name, qErr))
				continue
			}
			resolved[d.Name] = existing.ID
			idx.add(d.Name, d.Slug, existing.ID)
			summary.Stats.ZonesValidated++
		default:
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("zone %q: create failed: %v", d.Name, err))
		}
	}

	return resolved
}

// reconcilePrices resolves each observation's zone and performs the
// idempotent existence-check-then-insert. A pre-existing row always wins;
// per-row store errors are collected and the loop keeps going.
func (s *ScrapeService) reconcilePrices(ctx context.Context, descriptors []models.PriceDescriptor, idx *registryIndex, resolved map[string]uint, summary *models.RunSummary) {
	for _, d := range descriptors {
		zoneID, ok := resolved[d.ZoneName]
		if !ok {
			zoneID, ok = s.fuzzyResolve(d.ZoneName, idx, resolved)
			if !ok {
				// Unresolvable zone name: expected noise, not an error.
				continue
			}
		}

		exists, err := s.prices.PriceExists(ctx, zoneID, d.Date)
		if err != nil {
			summary.Errors = append(summary.Errors, priceErrString(d, err))
			continue
		}
		if exists {
			summary.Stats.PricesSkipped++
			continue
		}

		price := d.SuggestedPrice
		mode := s.mode
		row := &models.DailyPrice{
			ZoneID:         zoneID,
			Date:           d.Date,
			Year:           d.Date.Year(),
			Month:          int(d.Date.Month()),
			Day:            d.Date.Day(),
			SuggestedPrice: &price,
			Source:         models.PriceSourceScraped,
			ScraperMode:    &mode,
		}
		err = s.prices.InsertPrice(ctx, row)
		switch {
		case err == nil:
			summary.Stats.PricesInserted++
		case errors.Is(err, repository.ErrDuplicatePrice):
			// A concurrent run inserted between our check and insert.
			summary.Stats.PricesSkipped++
		default:
			summary.Errors = append(summary.Errors, priceErrString(d, err))
		}
	}
}

// fuzzyResolve walks every registry name looking for the first structural
// match, and caches a hit so later rows for the same scraped name resolve
// without another scan.
func (s *ScrapeService) fuzzyResolve(name string, idx *registryIndex, resolved map[string]uint) (uint, bool) {
	for _, candidate := range idx.names {
		if !namesMatch(name, candidate) {
			continue
		}
		id := idx.idByName[candidate]
		resolved[name] = id
		s.logger.Debug("fuzzy-matched zone name",
			zap.String("scraped", name), zap.String("registry", candidate))
		return id, true
	}
	return 0, false
}

func priceErrString(d models.PriceDescriptor, err error) string {
	return fmt.Sprintf("price for %s on %s: %v", d.ZoneName, d.Date.Format("2006-01-02"), err)
}
