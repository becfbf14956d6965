// Package repair detects bad channels and rebuilds them by spherical-spline
// interpolation (Perrin et al., 1989) from the remaining good channels.
package repair
