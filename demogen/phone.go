package demogen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// Phone draws a number shaped like the region's example number and formats it in
// international notation. The leading half of the example is kept so area codes and
// mobile prefixes stay plausible.
func Phone(r *Rand, region string) string {
	region = strings.ToUpper(region)
	cc := libphonenumber.GetCountryCodeForRegion(region)
	example := libphonenumber.GetExampleNumber(region)
	if cc == 0 || example == nil {
		return fmt.Sprintf("+1 555 %03d %04d", r.Int(100, 999), r.Int(0, 9999))
	}

	national := strconv.FormatUint(example.GetNationalNumber(), 10)
	keep := len(national) / 2
	var b strings.Builder
	b.WriteString(national[:keep])
	for i := keep; i < len(national); i++ {
		b.WriteByte(byte('0' + r.Int(0, 9)))
	}
	digits := b.String()

	num, err := libphonenumber.Parse(fmt.Sprintf("+%d%s", cc, digits), region)
	if err != nil {
		return fmt.Sprintf("+%d %s", cc, digits)
	}
	return libphonenumber.Format(num, libphonenumber.INTERNATIONAL)
}
