// Package useragent provides the rotating pool of browser user-agent
// strings the Requestor draws from when a caller requests randomization.
package useragent

import "math/rand"

// Pool is the default rotation of user-agent strings spanning major
// browser families, kept deliberately varied so judge probes don't all
// look like the same client.
var Pool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edg/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) OPR/105.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Vivaldi/6.5",
	"Mozilla/5.0 (X11; Linux i686; rv:52.0) Gecko/20190101 PaleMoon/28.10.0a1",
	"Mozilla/5.0 (compatible; Lynx/2.9.0dev.6; Linux) libwww-FM/2.14 SSL-MM/1.4.1",
	"Links (2.28; Linux x86_64)",
}

// Default is the fixed user-agent used for the judge's unproxied baseline
// fetch and by the Source Harvesters.
const Default = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// Random returns a pseudo-random entry from Pool.
func Random() string {
	return Pool[rand.Intn(len(Pool))]
}
