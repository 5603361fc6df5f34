// Package analysis runs the statistical checks over assembled KPIs: linear
// hypothesis tests between acquisition cost, retention and profit, and the
// distribution of days active per install.
package analysis
