package astro

import "math"

// Low-precision ephemerides after the Astronomical Almanac approximation
// formulae. Good to a few arcminutes for the sun and ~0.3 degrees for the
// moon over the 1950-2050 range, which keeps rise/set within a minute or two
// for the sun and a handful of minutes for the moon.

const (
	j2000        = 2451545.0
	obliquityDeg = 23.439 // mean obliquity of the ecliptic at J2000
	deg2rad      = math.Pi / 180
	rad2deg      = 180 / math.Pi
)

// sunPositionAt computes the sun's topocentric altitude/azimuth at a Julian
// Day for the calculator's location.
func (c *Calculator) sunPositionAt(jd float64) Position {
	d := jd - j2000

	// Ecliptic longitude from mean longitude plus the equation of center.
	meanLon := wrap360(280.460 + 0.98564736*d)
	meanAnom := wrap360(357.528+0.98560028*d) * deg2rad
	eclLon := (meanLon + 1.915*math.Sin(meanAnom) + 0.020*math.Sin(2*meanAnom)) * deg2rad

	// The sun sits on the ecliptic; latitude is zero by definition here.
	eps := obliquityDeg * deg2rad
	ra := math.Atan2(math.Cos(eps)*math.Sin(eclLon), math.Cos(eclLon))
	dec := math.Asin(math.Sin(eps) * math.Sin(eclLon))

	return c.horizontal(jd, ra, dec)
}

// moonPositionAt computes the moon's geocentric altitude/azimuth at a Julian
// Day. Topocentric parallax is not applied.
func (c *Calculator) moonPositionAt(jd float64) Position {
	d := jd - j2000

	meanLon := wrap360(218.316 + 13.176396*d)
	meanAnom := wrap360(134.963+13.064993*d) * deg2rad
	meanDist := wrap360(93.272+13.229350*d) * deg2rad

	eclLon := (meanLon + 6.289*math.Sin(meanAnom)) * deg2rad
	eclLat := 5.128 * math.Sin(meanDist) * deg2rad

	eps := obliquityDeg * deg2rad
	sinLat, cosLat := math.Sin(eclLat), math.Cos(eclLat)
	sinLon, cosLon := math.Sin(eclLon), math.Cos(eclLon)

	ra := math.Atan2(sinLon*math.Cos(eps)-math.Tan(eclLat)*math.Sin(eps), cosLon)
	dec := math.Asin(sinLat*math.Cos(eps) + cosLat*math.Sin(eps)*sinLon)

	return c.horizontal(jd, ra, dec)
}

// horizontal converts equatorial coordinates (radians) to altitude/azimuth
// degrees using Greenwich mean sidereal time.
func (c *Calculator) horizontal(jd float64, ra, dec float64) Position {
	d := jd - j2000
	t := d / 36525.0
	gmst := wrap360(280.46061837 + 360.98564736629*d + 0.000387933*t*t)
	lst := wrap360(gmst + c.loc.LonDeg)

	ha := lst*deg2rad - ra
	lat := c.loc.LatDeg * deg2rad

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinDec, cosDec := math.Sin(dec), math.Cos(dec)
	sinHA, cosHA := math.Sin(ha), math.Cos(ha)

	alt := math.Asin(sinLat*sinDec + cosLat*cosDec*cosHA)
	az := math.Atan2(sinHA, cosHA*sinLat-math.Tan(dec)*cosLat) + math.Pi

	return Position{
		AltitudeDeg: alt * rad2deg,
		AzimuthDeg:  wrap360(az * rad2deg),
	}
}
