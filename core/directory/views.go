package directory

import (
	"AuraFM/core/watch"
	"AuraFM/logger"
	"AuraFM/model"
)

// computeFeatured re-derives the featured collection from the well-known
// setting row. Entries whose referenced row cannot be found are dropped
// silently, never failing the whole batch.
func (d *Directory) computeFeatured() {
	setting, ok, err := d.catalog.SettingByIdentifier(d.opts.FeaturedSettingIdentifier)
	if err != nil {
		logger.Warn("featured setting query failed", logger.ErrorField(err))
		return
	}
	if !ok {
		d.featured.Set(nil)
		return
	}
	d.featuredSettingID = setting.ID

	entries, err := model.ParseFeatured(setting.Value)
	if err != nil {
		logger.Warn("featured setting value unparseable",
			logger.Int64("settingId", setting.ID),
			logger.ErrorField(err))
		return
	}

	items := make([]FeaturedItem, 0, len(entries))
	for _, entry := range entries {
		entity, ok, err := d.catalog.EntityByID(entry.Type, entry.ID)
		if err != nil {
			logger.Warn("featured entry query failed",
				logger.Int64("id", entry.ID),
				logger.ErrorField(err))
			continue
		}
		if !ok {
			continue
		}
		items = append(items, FeaturedItem{Entry: entry, Entity: entity})
	}
	d.featured.Set(items)
}

// computeLatest re-queries the fixed-size most-recent window. The list is
// always recomputed whole, never patched in place.
func (d *Directory) computeLatest() {
	bs, err := d.catalog.RecentBroadcasts(d.opts.LatestBroadcastCount)
	if err != nil {
		logger.Warn("latest broadcasts query failed", logger.ErrorField(err))
		return
	}
	d.latest.Set(bs)
}

// computePrograms re-derives the program list in priority order.
func (d *Directory) computePrograms() {
	ps, err := d.catalog.Programs()
	if err != nil {
		logger.Warn("programs query failed", logger.ErrorField(err))
		return
	}
	d.programs.Set(OrderPrograms(ps, d.opts.ProgramPriority))
}

// computeLive looks the live channel up once and wraps it in a live-updating
// projection; afterwards only its underlying fields refresh.
func (d *Directory) computeLive() {
	if d.live.Load() != nil {
		return
	}
	ch, ok, err := d.catalog.ChannelByIdentifier(d.opts.LiveChannelIdentifier)
	if err != nil {
		logger.Warn("live channel query failed", logger.ErrorField(err))
		return
	}
	if !ok {
		return
	}

	d.live.Store(watch.NewLiveEntity(ch, ch.ID, model.EntityChannel, d.catalog.Events(),
		func(id int64) (*model.Channel, bool, error) {
			entity, ok, err := d.catalog.EntityByID(model.EntityChannel, id)
			if err != nil || !ok {
				return nil, ok, err
			}
			return entity.(*model.Channel), true, nil
		}))
}

// OrderPrograms sorts programs by the configured priority identifier list:
// named programs first in listed order, then the remaining non-hidden ones
// in their persisted order.
func OrderPrograms(programs []model.Program, priority []string) []model.Program {
	byIdentifier := make(map[string]int, len(programs))
	for i, p := range programs {
		byIdentifier[p.Identifier] = i
	}

	ordered := make([]model.Program, 0, len(programs))
	taken := make(map[string]bool, len(priority))
	for _, ident := range priority {
		if i, ok := byIdentifier[ident]; ok && !taken[ident] {
			ordered = append(ordered, programs[i])
			taken[ident] = true
		}
	}
	for _, p := range programs {
		if p.Hidden || taken[p.Identifier] {
			continue
		}
		ordered = append(ordered, p)
	}
	return ordered
}
