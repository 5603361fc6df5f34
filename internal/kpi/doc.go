// Package kpi computes the marketing KPIs over the cleaned source tables.
//
// A Calculator holds typed Inputs and exposes one method per metric:
// acquisition cost per install, revenue and payouts per install, retention
// rate or mean days active, and the assembled profit table. Each method
// takes a GroupBy over the dimensions network_id, country_id, install_id,
// event_date, year, month, year_and_month and day_of_week, and an
// Aggregation (mean or sum).
//
// Joins never drop rows silently. Every result carries JoinStats with the
// matched and unmatched row counts and the number of rows that could not be
// grouped because they lack a key, such as revenue for an unknown install
// grouped by network.
package kpi
