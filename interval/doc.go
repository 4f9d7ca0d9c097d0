/*Package interval implements interval-union lookups over sets of genomic
  coordinates represented by BED files, such as the high-confidence regions
  of a truth set.
  (Note the 'union'.  Overlapping intervals are merged, not tracked
  separately.)
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval
