// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
bio-pileup-image turns the read pileup around each site of a region BED into
a fixed-size multi-channel image, labeled with the site's genotype, for
training and evaluating genotype classifiers.

Sample usage:
bio-pileup-image generate \
    -bam my.bam \
    -ref hg19.fa \
    -bed candidates.bed \
    -out /tmp/images

writes /tmp/images/run_MMDDYYYY_HHMMSS/ containing one .npy image per site and
a summary.csv describing them.  Other subcommands:

  downsample  subsample hom-ref sites to the size of the largest other class
  stats       print genotype class totals of a region BED
  analyze     print a text rendering of every channel of an image
*/
package main

import "github.com/grailbio/pileupimage/cmd/bio-pileup-image/cmd"

func main() {
	cmd.Run()
}
