package constant

// FundkrawlerVersion is the version reported in logs and the dumped config.
const FundkrawlerVersion = "0.3.0"
