// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package enrichment

import (
	"net"
	"sync"

	"redirector/internal/database/models"

	"github.com/oschwald/geoip2-golang"
	"github.com/pterm/pterm"
)

// location is one cached lookup result
type location struct {
	country string
	city    string
}

// GeoIPEnricher annotates log entries with country and city from MaxMind
// databases. Lookups are cached per IP. A nil or disabled enricher is safe
// to call; entries simply stay unannotated.
type GeoIPEnricher struct {
	cityDB    *geoip2.Reader
	countryDB *geoip2.Reader
	logger    *pterm.Logger
	cache     map[string]location
	cacheMu   sync.RWMutex
	enabled   bool
	cacheSize int
}

// NewGeoIPEnricher opens whichever databases are available. Missing files
// are a warning, not an error: the redirector runs fine without geo data.
func NewGeoIPEnricher(cityDBPath, countryDBPath string, logger *pterm.Logger, cacheSize int) *GeoIPEnricher {
	if cacheSize <= 0 {
		cacheSize = 10000
	}

	enricher := &GeoIPEnricher{
		logger:    logger,
		cache:     make(map[string]location, cacheSize),
		cacheSize: cacheSize,
	}

	if cityDBPath != "" {
		cityDB, err := geoip2.Open(cityDBPath)
		if err != nil {
			logger.Warn("GeoIP City database not available",
				logger.Args("path", cityDBPath, "error", err))
		} else {
			enricher.cityDB = cityDB
			enricher.enabled = true
			logger.Info("Loaded GeoIP City database", logger.Args("path", cityDBPath))
		}
	}

	if countryDBPath != "" {
		countryDB, err := geoip2.Open(countryDBPath)
		if err != nil {
			logger.Warn("GeoIP Country database not available",
				logger.Args("path", countryDBPath, "error", err))
		} else {
			enricher.countryDB = countryDB
			enricher.enabled = true
			logger.Info("Loaded GeoIP Country database", logger.Args("path", countryDBPath))
		}
	}

	if !enricher.enabled {
		logger.Debug("GeoIP enrichment disabled - no databases available")
	}

	return enricher
}

// Enrich fills GeoCountry and GeoCity on the entry. Lookup failures leave
// the entry untouched, never fail the capture.
func (g *GeoIPEnricher) Enrich(entry *models.LogEntry) {
	if g == nil || !g.enabled || entry.ClientIP == "" {
		return
	}

	g.cacheMu.RLock()
	cached, exists := g.cache[entry.ClientIP]
	g.cacheMu.RUnlock()

	if exists {
		entry.GeoCountry = cached.country
		entry.GeoCity = cached.city
		return
	}

	ip := net.ParseIP(entry.ClientIP)
	if ip == nil {
		return
	}

	var loc location
	if g.cityDB != nil {
		record, err := g.cityDB.City(ip)
		if err == nil {
			loc.country = record.Country.IsoCode
			loc.city = record.City.Names["en"]
		} else {
			g.logger.Trace("GeoIP City lookup failed", g.logger.Args("ip", entry.ClientIP, "error", err))
		}
	}
	if loc.country == "" && g.countryDB != nil {
		record, err := g.countryDB.Country(ip)
		if err == nil {
			loc.country = record.Country.IsoCode
		} else {
			g.logger.Trace("GeoIP Country lookup failed", g.logger.Args("ip", entry.ClientIP, "error", err))
		}
	}

	entry.GeoCountry = loc.country
	entry.GeoCity = loc.city

	g.cacheMu.Lock()
	if len(g.cache) >= g.cacheSize {
		// Full cache: reset rather than track ages, lookups are cheap
		g.cache = make(map[string]location, g.cacheSize)
	}
	g.cache[entry.ClientIP] = loc
	g.cacheMu.Unlock()
}

// IsEnabled returns whether any database was loaded
func (g *GeoIPEnricher) IsEnabled() bool {
	return g != nil && g.enabled
}

// Close closes the GeoIP databases
func (g *GeoIPEnricher) Close() error {
	if g == nil {
		return nil
	}
	if g.cityDB != nil {
		g.cityDB.Close()
	}
	if g.countryDB != nil {
		g.countryDB.Close()
	}
	return nil
}
